package decoder

import (
	"errors"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"traverse/internal/disasm"
	"traverse/internal/engine"
)

// maxX86Len is the architectural limit on x86 instruction length.
const maxX86Len = 15

func (d *Decoder) decodeX86(t engine.Target, va uint64) (disasm.Instruction, error) {
	b, err := read(t, va, maxX86Len)
	if err != nil {
		return disasm.Instruction{}, err
	}

	inst, err := x86asm.Decode(b, d.arch.mode)
	if err != nil {
		kind := engine.ErrDecode
		// the readable range ended inside the instruction
		if errors.Is(err, x86asm.ErrTruncated) && len(b) < maxX86Len {
			kind = engine.ErrOutOfRange
		}
		return disasm.Instruction{}, &engine.AddrError{Kind: kind, VA: va, Err: err}
	}

	var text string
	if d.syntax == SyntaxIntel {
		text = x86asm.IntelSyntax(inst, va, symLookup(t))
	} else {
		text = x86asm.GNUSyntax(inst, va, symLookup(t))
	}

	flow := x86Flow(inst.Op)
	return disasm.Instruction{
		VA:       va,
		Len:      inst.Len,
		Bytes:    append([]byte(nil), b[:inst.Len]...),
		Op:       strings.ToLower(inst.Op.String()),
		Text:     text,
		Operands: x86Operands(inst, x86Branch(inst.Op)),
		Flow:     flow,
	}, nil
}

func x86Flow(op x86asm.Op) disasm.Flow {
	switch op {
	case x86asm.JMP, x86asm.LJMP:
		return disasm.FlowJump
	case x86asm.CALL, x86asm.LCALL:
		return disasm.FlowCall
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ,
		x86asm.SYSRET, x86asm.SYSEXIT, x86asm.HLT:
		// hlt ends the path like a return
		return disasm.FlowReturn
	case x86asm.UD0, x86asm.UD1, x86asm.UD2:
		return disasm.FlowInvalid
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JG,
		x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP,
		x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS,
		x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return disasm.FlowCondJump
	}
	return disasm.FlowNormal
}

// x86Branch reports whether the operands of op name a near branch target.
// Far transfers carry a segment selector and are not followed.
func x86Branch(op x86asm.Op) bool {
	switch op {
	case x86asm.LJMP, x86asm.LCALL:
		return false
	}
	f := x86Flow(op)
	return f == disasm.FlowJump || f == disasm.FlowCall || f == disasm.FlowCondJump
}

func x86Operands(inst x86asm.Inst, branch bool) []disasm.Operand {
	var ops []disasm.Operand
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		var op disasm.Operand
		switch a := a.(type) {
		case x86asm.Reg:
			op = disasm.RegOperand(x86Reg(a))
		case x86asm.Mem:
			op = disasm.MemOperand(disasm.Mem{
				Base:  x86Reg(a.Base),
				Index: x86Reg(a.Index),
				Scale: a.Scale,
				Disp:  a.Disp,
			})
		case x86asm.Imm:
			op = disasm.ImmOperand(int64(a))
		case x86asm.Rel:
			op = disasm.RelOperand(int64(a))
		default:
			continue
		}
		if branch {
			op = op.AsBranch()
		}
		ops = append(ops, op)
	}
	return ops
}

func x86Reg(r x86asm.Reg) string {
	if r == 0 {
		return ""
	}
	return strings.ToLower(r.String())
}
