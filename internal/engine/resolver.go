package engine

import "traverse/internal/disasm"

// Resolver maps an operand of inst to a destination address. A false
// result means the edge is not followed; it is not an error.
type Resolver interface {
	Resolve(op disasm.Operand, inst disasm.Instruction, t Target) (uint64, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(op disasm.Operand, inst disasm.Instruction, t Target) (uint64, bool)

func (f ResolverFunc) Resolve(op disasm.Operand, inst disasm.Instruction, t Target) (uint64, bool) {
	return f(op, inst, t)
}

// DefaultResolver resolves immediates and symbols. Register and memory
// operands are never resolved since that needs register tracking.
type DefaultResolver struct{}

func (DefaultResolver) Resolve(op disasm.Operand, inst disasm.Instruction, t Target) (uint64, bool) {
	var va uint64
	switch op.Kind {
	case disasm.OperandImm:
		if op.Relative {
			va = inst.Next() + uint64(op.Imm)
			// wrapped below zero or past the top of the address space
			if (op.Imm < 0 && va > inst.Next()) || (op.Imm > 0 && va < inst.Next()) {
				return 0, false
			}
		} else {
			if op.Imm < 0 {
				return 0, false
			}
			va = uint64(op.Imm)
		}
	case disasm.OperandSym:
		sl, ok := t.(SymbolLookup)
		if !ok {
			return 0, false
		}
		if va, ok = sl.SymbolAddress(op.Symbol); !ok {
			return 0, false
		}
	default:
		return 0, false
	}
	if !t.Contains(va) {
		return 0, false
	}
	return va, true
}
