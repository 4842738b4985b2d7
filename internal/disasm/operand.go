package disasm

import "fmt"

// OperandKind tags the variant held by an Operand.
type OperandKind uint8

const (
	OperandImm OperandKind = iota
	OperandReg
	OperandMem
	OperandSym
)

func (k OperandKind) String() string {
	switch k {
	case OperandImm:
		return "imm"
	case OperandReg:
		return "reg"
	case OperandMem:
		return "mem"
	case OperandSym:
		return "sym"
	}
	return fmt.Sprintf("operand(%d)", uint8(k))
}

// Mem is a memory reference of the form [Base + Index*Scale + Disp].
type Mem struct {
	Base  string
	Index string
	Scale uint8
	Disp  int64
}

// Operand is one instruction operand. Only the fields matching Kind are set.
type Operand struct {
	Kind OperandKind

	Imm      int64 // OperandImm
	Relative bool  // Imm is relative to the address after the instruction

	Reg    string // OperandReg
	Mem    Mem    // OperandMem
	Symbol string // OperandSym

	Branch bool // operand names a control-flow destination
}

// ImmOperand returns an absolute immediate operand.
func ImmOperand(v int64) Operand {
	return Operand{Kind: OperandImm, Imm: v}
}

// RelOperand returns an immediate relative to the next instruction.
func RelOperand(v int64) Operand {
	return Operand{Kind: OperandImm, Imm: v, Relative: true}
}

// RegOperand returns a register operand.
func RegOperand(name string) Operand {
	return Operand{Kind: OperandReg, Reg: name}
}

// MemOperand returns a memory operand.
func MemOperand(m Mem) Operand {
	return Operand{Kind: OperandMem, Mem: m}
}

// SymOperand returns a symbolic reference.
func SymOperand(name string) Operand {
	return Operand{Kind: OperandSym, Symbol: name}
}

// AsBranch returns a copy of op flagged as a branch destination.
func (op Operand) AsBranch() Operand {
	op.Branch = true
	return op
}

func (op Operand) String() string {
	switch op.Kind {
	case OperandImm:
		if op.Relative {
			return fmt.Sprintf(".%+#x", op.Imm)
		}
		return fmt.Sprintf("%#x", op.Imm)
	case OperandReg:
		return op.Reg
	case OperandMem:
		m := op.Mem
		s := "[" + m.Base
		if m.Index != "" {
			if s != "[" {
				s += "+"
			}
			s += fmt.Sprintf("%s*%d", m.Index, m.Scale)
		}
		if m.Disp != 0 || s == "[" {
			if s != "[" && m.Disp >= 0 {
				s += "+"
			}
			s += fmt.Sprintf("%#x", m.Disp)
		}
		return s + "]"
	case OperandSym:
		return op.Symbol
	}
	return "?"
}
