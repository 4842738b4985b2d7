package analysis

import (
	"traverse/internal/disasm"
	"traverse/internal/engine"
)

// Block is a basic block: a run of contiguous instructions entered only at
// its first instruction and left only after its last.
type Block struct {
	Start        uint64
	End          uint64
	Instructions disasm.Stream
	// Succs are the addresses control can reach next, fall-through first.
	// Only addresses present in the disassembly are listed.
	Succs []uint64
}

// Len returns the number of instructions in the block.
func (b Block) Len() int { return len(b.Instructions) }

// Last returns the terminating instruction.
func (b Block) Last() disasm.Instruction {
	return b.Instructions[len(b.Instructions)-1]
}

// listing lets the engine's resolver test branch targets against the
// decoded instructions instead of the raw target.
type listing struct {
	d *disasm.Disassembly
}

func (l listing) Read(va uint64, n int) ([]byte, error) {
	inst, ok := l.d.Get(va)
	if !ok {
		return nil, &engine.AddrError{Kind: engine.ErrOutOfRange, VA: va}
	}
	b := inst.Bytes
	if n < len(b) {
		b = b[:n]
	}
	return b, nil
}

func (l listing) Contains(va uint64) bool {
	_, ok := l.d.Get(va)
	return ok
}

// Blocks splits d into basic blocks. Leaders are the seeds, the first
// instruction, every resolved branch target and every instruction following
// a control transfer or a gap. Calls end a block.
func Blocks(d *disasm.Disassembly, seeds ...uint64) []Block {
	insts := d.Instructions()
	if len(insts) == 0 {
		return nil
	}

	l := listing{d}
	var res engine.DefaultResolver
	targets := func(inst disasm.Instruction) []uint64 {
		var out []uint64
		if !inst.Flow.Branches() {
			return nil
		}
		for _, op := range inst.BranchOperands() {
			if va, ok := res.Resolve(op, inst, l); ok {
				out = append(out, va)
			}
		}
		return out
	}

	leaders := map[uint64]bool{insts[0].VA: true}
	for _, va := range seeds {
		if l.Contains(va) {
			leaders[va] = true
		}
	}
	for i, inst := range insts {
		for _, va := range targets(inst) {
			leaders[va] = true
		}
		if i+1 < len(insts) {
			next := insts[i+1]
			if inst.Flow != disasm.FlowNormal || next.VA != inst.End() {
				leaders[next.VA] = true
			}
		}
	}

	var blocks []Block
	for i := 0; i < len(insts); {
		j := i + 1
		for j < len(insts) && !leaders[insts[j].VA] {
			j++
		}
		run := insts[i:j]
		last := run[len(run)-1]

		b := Block{
			Start:        run[0].VA,
			End:          last.End(),
			Instructions: run,
		}
		seen := make(map[uint64]bool)
		add := func(va uint64) {
			if !seen[va] {
				seen[va] = true
				b.Succs = append(b.Succs, va)
			}
		}
		if last.Flow.Continues() && l.Contains(last.End()) {
			add(last.End())
		}
		for _, va := range targets(last) {
			add(va)
		}
		blocks = append(blocks, b)
		i = j
	}
	return blocks
}
