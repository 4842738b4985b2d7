// Package disasm defines the instruction representation shared by the
// decoders, the traversal engine and the presentation layer.
package disasm

import (
	"fmt"
	"strings"
)

// Flow classifies how an instruction affects control flow.
type Flow uint8

const (
	FlowNormal   Flow = iota // execution continues at the next instruction
	FlowJump                 // unconditional jump
	FlowCondJump             // conditional jump, falls through when not taken
	FlowCall                 // call, returns to the next instruction
	FlowReturn               // return from a routine
	FlowInvalid              // decoded but not a valid instruction
)

var flowNames = [...]string{
	FlowNormal:   "normal",
	FlowJump:     "jump",
	FlowCondJump: "cond-jump",
	FlowCall:     "call",
	FlowReturn:   "return",
	FlowInvalid:  "invalid",
}

func (f Flow) String() string {
	if int(f) < len(flowNames) {
		return flowNames[f]
	}
	return fmt.Sprintf("flow(%d)", uint8(f))
}

// Continues reports whether execution may reach the next sequential
// instruction after one of this kind.
func (f Flow) Continues() bool {
	switch f {
	case FlowNormal, FlowCondJump, FlowCall:
		return true
	default:
		return false
	}
}

// Branches reports whether operands of this kind of instruction name
// control-flow destinations worth following.
func (f Flow) Branches() bool {
	return f == FlowCondJump || f == FlowCall || f == FlowJump
}

// Instruction is a single decoded instruction.
type Instruction struct {
	VA       uint64    // virtual address of instruction
	Len      int       // encoded length in bytes
	Bytes    []byte    // raw encoding
	Op       string    // mnemonic in lowercase
	Text     string    // formatted disassembly string
	Operands []Operand // operands in decoder order
	Flow     Flow
}

// End returns the address one past the last byte of the instruction.
func (i Instruction) End() uint64 {
	return i.VA + uint64(i.Len)
}

// Next is the fall-through address.
func (i Instruction) Next() uint64 {
	return i.End()
}

// Contains reports whether va lies within [VA, VA+Len).
func (i Instruction) Contains(va uint64) bool {
	return va >= i.VA && va < i.End()
}

// BranchOperands returns the operands flagged as control-flow destinations.
func (i Instruction) BranchOperands() []Operand {
	var ops []Operand
	for _, op := range i.Operands {
		if op.Branch {
			ops = append(ops, op)
		}
	}
	return ops
}

// HexBytes formats b as space separated hex pairs ("eb fe").
func HexBytes(b []byte) string {
	var hex strings.Builder
	for n, c := range b {
		if n > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02x", c)
	}
	return hex.String()
}

// String formats the instruction as "address  bytes  text".
func (i Instruction) String() string {
	text := i.Text
	if text == "" {
		text = i.Op
	}
	return fmt.Sprintf("%-10x %-24s %s", i.VA, HexBytes(i.Bytes), text)
}

// Stream is a linear sequence of instructions.
type Stream []Instruction
