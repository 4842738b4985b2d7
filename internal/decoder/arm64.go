package decoder

import (
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"traverse/internal/disasm"
	"traverse/internal/engine"
)

const arm64InstLen = 4

func (d *Decoder) decodeARM64(t engine.Target, va uint64) (disasm.Instruction, error) {
	b, err := read(t, va, arm64InstLen)
	if err != nil {
		return disasm.Instruction{}, err
	}
	if len(b) < arm64InstLen {
		return disasm.Instruction{}, &engine.AddrError{Kind: engine.ErrOutOfRange, VA: va}
	}

	inst, err := arm64asm.Decode(b)
	if err != nil {
		return disasm.Instruction{}, &engine.AddrError{Kind: engine.ErrDecode, VA: va, Err: err}
	}

	var text string
	if d.syntax == SyntaxIntel {
		// ARM reference syntax
		text = strings.TrimSpace(inst.String())
	} else {
		text = arm64asm.GNUSyntax(inst)
	}

	flow := arm64Flow(inst)
	return disasm.Instruction{
		VA:       va,
		Len:      arm64InstLen,
		Bytes:    append([]byte(nil), b[:arm64InstLen]...),
		Op:       strings.ToLower(inst.Op.String()),
		Text:     text,
		Operands: arm64Operands(inst, va),
		Flow:     flow,
	}, nil
}

func arm64Flow(inst arm64asm.Inst) disasm.Flow {
	switch inst.Op {
	case arm64asm.B:
		if _, ok := inst.Args[0].(arm64asm.Cond); ok {
			return disasm.FlowCondJump
		}
		return disasm.FlowJump
	case arm64asm.BR:
		return disasm.FlowJump
	case arm64asm.BL, arm64asm.BLR:
		return disasm.FlowCall
	case arm64asm.CBZ, arm64asm.CBNZ, arm64asm.TBZ, arm64asm.TBNZ:
		return disasm.FlowCondJump
	case arm64asm.RET, arm64asm.ERET, arm64asm.DRPS, arm64asm.BRK, arm64asm.HLT:
		// traps end the path like a return
		return disasm.FlowReturn
	}
	return disasm.FlowNormal
}

// arm64Operands maps the decoded arguments. PC-relative arguments become
// absolute immediates so the resolver needs no architecture knowledge.
func arm64Operands(inst arm64asm.Inst, va uint64) []disasm.Operand {
	flow := arm64Flow(inst)
	// only br and blr branch through a register; cbz and tbz test one
	regBranch := inst.Op == arm64asm.BR || inst.Op == arm64asm.BLR

	var ops []disasm.Operand
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		var op disasm.Operand
		switch a := a.(type) {
		case arm64asm.Reg:
			op = disasm.RegOperand(strings.ToLower(a.String()))
			if regBranch {
				op = op.AsBranch()
			}
		case arm64asm.RegSP:
			op = disasm.RegOperand(strings.ToLower(a.String()))
		case arm64asm.PCRel:
			op = disasm.ImmOperand(int64(va) + int64(a))
			if flow.Branches() {
				op = op.AsBranch()
			}
		case arm64asm.Imm:
			op = disasm.ImmOperand(int64(a.Imm))
		case arm64asm.Imm64:
			op = disasm.ImmOperand(int64(a.Imm))
		case arm64asm.MemImmediate:
			op = disasm.MemOperand(disasm.Mem{Base: strings.ToLower(a.Base.String())})
		default:
			continue
		}
		ops = append(ops, op)
	}
	return ops
}
