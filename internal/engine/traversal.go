package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"traverse/internal/disasm"
)

// traversal holds the state of one Traverse call.
type traversal struct {
	ctx      context.Context
	target   Target
	decoder  Decoder
	resolver Resolver
	tracker  Tracker
	out      *disasm.Disassembly
	sink     func(disasm.Instruction)
	max      int
	logger   *log.Logger

	emitted int
	stopped bool
}

func (r *traversal) emit(inst disasm.Instruction) {
	r.emitted++
	if r.sink != nil {
		r.sink(inst)
		return
	}
	r.out.Insert(inst)
}

func (r *traversal) record(err error) {
	r.logger.Debug("traversal error", "error", err)
	r.out.RecordError(err)
}

// halted is checked once per step. Cancellation and the instruction limit
// are recorded once and end the traversal.
func (r *traversal) halted() bool {
	if r.stopped {
		return true
	}
	if r.ctx != nil {
		if err := r.ctx.Err(); err != nil {
			r.record(fmt.Errorf("traversal canceled: %w", err))
			r.stopped = true
			return true
		}
	}
	if r.emitted >= r.max {
		r.record(fmt.Errorf("%w: limit of %d reached", ErrMaxInstructions, r.max))
		r.stopped = true
		return true
	}
	return false
}

// decode decodes the instruction at va and checks it against the target.
// Failures are recorded and reported as !ok.
func (r *traversal) decode(va uint64) (disasm.Instruction, bool) {
	inst, err := r.decoder.Decode(r.target, va)
	if err != nil {
		r.record(addrError(va, err))
		return disasm.Instruction{}, false
	}
	inst.VA = va
	if inst.Len <= 0 {
		r.record(&AddrError{Kind: ErrDecode, VA: va, Err: errors.New("zero-length instruction")})
		return disasm.Instruction{}, false
	}
	if last := inst.End() - 1; last < va || !r.target.Contains(last) {
		r.record(&AddrError{Kind: ErrOutOfRange, VA: va,
			Err: fmt.Errorf("instruction of %d bytes runs past the target", inst.Len)})
		return disasm.Instruction{}, false
	}
	return inst, true
}

// single decodes exactly one instruction.
func (r *traversal) single(va uint64) {
	if r.halted() {
		return
	}
	inst, ok := r.decode(va)
	if !ok {
		return
	}
	r.emit(inst)
	if inst.Flow == disasm.FlowInvalid {
		r.record(&AddrError{Kind: ErrInvalidInstruction, VA: va})
	}
}

// linear decodes sequential instructions from start until length bytes are
// covered or the readable range ends. After a decode failure the cursor
// moves one byte forward to resynchronise.
func (r *traversal) linear(start, length uint64) {
	end := start + length
	bounded := length > 0
	if bounded && end < start {
		end = ^uint64(0)
	}

	if !r.target.Contains(start) {
		r.record(&AddrError{Kind: ErrOutOfRange, VA: start})
		return
	}

	for va := start; ; {
		if bounded && va >= end {
			return
		}
		if !r.target.Contains(va) || r.halted() {
			return
		}

		inst, ok := r.decode(va)
		if !ok {
			if va+1 < va {
				return
			}
			va++
			continue
		}
		if bounded && inst.End() > end {
			r.record(&AddrError{Kind: ErrOutOfRange, VA: va,
				Err: fmt.Errorf("instruction ends past %#x", end)})
			return
		}

		r.emit(inst)
		r.tracker.MarkDecoded(va)
		if inst.Flow == disasm.FlowInvalid {
			r.record(&AddrError{Kind: ErrInvalidInstruction, VA: va})
		}

		if inst.End() < va {
			return
		}
		va = inst.End()
	}
}

// cflow follows control flow from seeds. The work-list is a stack; for
// each instruction the fall-through is pushed before the branch targets, so
// branch targets are explored first.
func (r *traversal) cflow(seeds []uint64) {
	stack := make([]uint64, 0, len(seeds))
	for i := len(seeds) - 1; i >= 0; i-- {
		if r.tracker.MarkQueued(seeds[i]) {
			stack = append(stack, seeds[i])
		}
	}

	for len(stack) > 0 {
		if r.halted() {
			return
		}
		va := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if r.tracker.IsDecoded(va) {
			continue
		}
		// failed addresses are dead ends and are not retried
		r.tracker.MarkDecoded(va)

		inst, ok := r.decode(va)
		if !ok {
			continue
		}
		r.emit(inst)

		if inst.Flow == disasm.FlowInvalid {
			r.record(&AddrError{Kind: ErrInvalidInstruction, VA: va})
			continue
		}

		var next []uint64
		if inst.Flow.Continues() {
			next = append(next, inst.Next())
		}
		if inst.Flow.Branches() {
			for _, op := range inst.BranchOperands() {
				dst, ok := r.resolver.Resolve(op, inst, r.target)
				if !ok {
					r.logger.Debug("unresolved branch operand",
						"va", fmt.Sprintf("%#x", va), "operand", op.String())
					continue
				}
				next = append(next, dst)
			}
		}

		for _, dst := range next {
			if r.tracker.MarkQueued(dst) {
				stack = append(stack, dst)
			}
		}
	}
}
