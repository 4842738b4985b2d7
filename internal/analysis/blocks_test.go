package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"traverse/internal/disasm"
)

func inst(va uint64, n int, flow disasm.Flow, ops ...disasm.Operand) disasm.Instruction {
	return disasm.Instruction{VA: va, Len: n, Bytes: make([]byte, n), Flow: flow, Operands: ops}
}

func rel(v int64) disasm.Operand { return disasm.RelOperand(v).AsBranch() }

type blockShape struct {
	Start, End uint64
	N          int
	Succs      []uint64
}

func shapes(bs []Block) []blockShape {
	var out []blockShape
	for _, b := range bs {
		out = append(out, blockShape{b.Start, b.End, b.Len(), b.Succs})
	}
	return out
}

func TestBlocks(t *testing.T) {
	// 0: normal
	// 1: jcc 8    (2 bytes, next 3, +5)
	// 3: normal
	// 4: jmp 1    (2 bytes, next 6, -5)
	// 6: ret
	// 8: normal
	// 9: ret
	d := disasm.New()
	for _, i := range []disasm.Instruction{
		inst(0, 1, disasm.FlowNormal),
		inst(1, 2, disasm.FlowCondJump, rel(5)),
		inst(3, 1, disasm.FlowNormal),
		inst(4, 2, disasm.FlowJump, rel(-5)),
		inst(6, 1, disasm.FlowReturn),
		inst(8, 1, disasm.FlowNormal),
		inst(9, 1, disasm.FlowReturn),
	} {
		d.Insert(i)
	}

	want := []blockShape{
		{0, 1, 1, []uint64{1}},
		{1, 3, 1, []uint64{3, 8}},
		{3, 6, 2, []uint64{1}},
		{6, 7, 1, nil},
		{8, 10, 2, nil},
	}
	if diff := cmp.Diff(want, shapes(Blocks(d))); diff != "" {
		t.Errorf("blocks (-want +got):\n%s", diff)
	}
}

func TestBlocksSeedsAndCalls(t *testing.T) {
	d := disasm.New()
	for _, i := range []disasm.Instruction{
		inst(0x10, 1, disasm.FlowNormal),
		inst(0x11, 5, disasm.FlowCall, disasm.ImmOperand(0x40).AsBranch()),
		inst(0x16, 1, disasm.FlowNormal),
		inst(0x17, 1, disasm.FlowReturn),
	} {
		d.Insert(i)
	}

	// the call target was not decoded, so it is no successor
	want := []blockShape{
		{0x10, 0x11, 1, []uint64{0x11}},
		{0x11, 0x16, 1, []uint64{0x16}},
		{0x16, 0x18, 2, nil},
	}
	if diff := cmp.Diff(want, shapes(Blocks(d, 0x11))); diff != "" {
		t.Errorf("blocks (-want +got):\n%s", diff)
	}
}

func TestBlocksEmpty(t *testing.T) {
	if got := Blocks(disasm.New()); got != nil {
		t.Errorf("Blocks(empty) = %v", got)
	}
}

func TestCachedDemangle(t *testing.T) {
	if got := CachedDemangle("_ZN3foo3barEv"); got != "foo::bar()" {
		t.Errorf("CachedDemangle = %q", got)
	}
	if got := CachedDemangle("main"); got != "main" {
		t.Errorf("plain name changed to %q", got)
	}
	CachedDemangle("_ZN3foo3barEv")

	total, hits, top := DemangleCacheStats()
	if total < 2 || hits < 1 || len(top) == 0 {
		t.Errorf("stats = %d, %d, %v", total, hits, top)
	}
}

func TestFuncSymbolLabel(t *testing.T) {
	if got := (FuncSymbol{Name: "_ZN3foo3barEv", Demangled: "foo::bar()"}).Label(); got != "foo::bar()" {
		t.Errorf("Label = %q", got)
	}
	if got := (FuncSymbol{Name: "main"}).Label(); got != "main" {
		t.Errorf("Label = %q", got)
	}
}
