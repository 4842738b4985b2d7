package target

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"traverse/internal/engine"
)

func TestBufferRead(t *testing.T) {
	b := NewBuffer(0x1000, []byte{1, 2, 3, 4})

	tests := []struct {
		name    string
		va      uint64
		n       int
		want    []byte
		wantErr bool
	}{
		{"start", 0x1000, 2, []byte{1, 2}, false},
		{"clipped", 0x1002, 15, []byte{3, 4}, false},
		{"last", 0x1003, 1, []byte{4}, false},
		{"below", 0xfff, 1, nil, true},
		{"end", 0x1004, 1, nil, true},
		{"zero", 0x1001, 0, []byte{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Read(tt.va, tt.n)
			if tt.wantErr {
				if !errors.Is(err, engine.ErrOutOfRange) {
					t.Fatalf("err = %v, want ErrOutOfRange", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Read mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBufferReadIsNotWritable(t *testing.T) {
	b := NewBuffer(0, []byte{1, 2, 3, 4})
	got, _ := b.Read(0, 2)
	got = append(got, 9)
	if b.Data[2] != 3 {
		t.Fatalf("append through Read result modified the buffer: %v", b.Data)
	}
	_ = got
}

func TestBufferContains(t *testing.T) {
	b := NewBuffer(0x10, make([]byte, 4))
	for va, want := range map[uint64]bool{0xf: false, 0x10: true, 0x13: true, 0x14: false} {
		if got := b.Contains(va); got != want {
			t.Errorf("Contains(%#x) = %v, want %v", va, got, want)
		}
	}
	if got := NewBuffer(0, nil).Contains(0); got {
		t.Error("empty buffer contains 0")
	}
}

func TestBufferSymbols(t *testing.T) {
	b := NewBuffer(0, make([]byte, 0x100)).
		AddSymbol("main", 0x10).
		AddSymbol("helper", 0x40).
		AddSymbol("start", 0x0)

	if va, ok := b.SymbolAddress("helper"); !ok || va != 0x40 {
		t.Errorf("SymbolAddress(helper) = %#x, %v", va, ok)
	}
	if _, ok := b.SymbolAddress("missing"); ok {
		t.Error("missing symbol found")
	}

	tests := []struct {
		va   uint64
		name string
		base uint64
	}{
		{0x0, "start", 0x0},
		{0x12, "main", 0x10},
		{0x40, "helper", 0x40},
		{0xff, "helper", 0x40},
	}
	for _, tt := range tests {
		name, base, ok := b.SymbolAt(tt.va)
		if !ok || name != tt.name || base != tt.base {
			t.Errorf("SymbolAt(%#x) = %q, %#x, %v; want %q, %#x", tt.va, name, base, ok, tt.name, tt.base)
		}
	}

	b.AddSymbol("main", 0x80)
	if name, _, _ := b.SymbolAt(0x12); name != "start" {
		t.Errorf("after moving main, SymbolAt(0x12) = %q, want start", name)
	}
	if name, _, _ := b.SymbolAt(0x90); name != "main" {
		t.Errorf("SymbolAt(0x90) = %q, want main", name)
	}
}

func TestBufferSectionsAndEntries(t *testing.T) {
	b := NewBuffer(0x400000, make([]byte, 0x40)).
		AddSection(".text", 0x400010, 0x20).
		SetEntryPoints(0x400010, 0x400020)

	start, size, ok := b.SectionBounds(".text")
	if !ok || start != 0x400010 || size != 0x20 {
		t.Errorf("SectionBounds(.text) = %#x, %#x, %v", start, size, ok)
	}
	if _, _, ok := b.SectionBounds(".data"); ok {
		t.Error(".data found")
	}

	eps := b.EntryPoints()
	if diff := cmp.Diff([]uint64{0x400010, 0x400020}, eps); diff != "" {
		t.Errorf("EntryPoints mismatch (-want +got):\n%s", diff)
	}
	eps[0] = 0
	if b.EntryPoints()[0] != 0x400010 {
		t.Error("EntryPoints exposes internal slice")
	}
}

func TestOpenRaw(t *testing.T) {
	p := filepath.Join(t.TempDir(), "code.bin")
	if err := os.WriteFile(p, []byte{0x90, 0xc3}, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(p, 0x8000, false)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if f.Kind != KindRaw || f.Image != nil {
		t.Fatalf("Kind = %s, want raw", f.Kind)
	}
	if !f.Target.Contains(0x8001) || f.Target.Contains(0x8002) {
		t.Error("raw buffer not mapped at vma")
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope"), 0, false); err == nil {
		t.Fatal("Open of a missing file succeeded")
	}
}
