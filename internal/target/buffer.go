// Package target provides byte sources for the traversal engine: an
// in-memory Buffer mapped at a base address, and Open, which picks an ELF
// image or a raw buffer for a file on disk.
package target

import (
	"fmt"
	"sort"

	"traverse/internal/engine"
)

// Buffer is a contiguous region of bytes mapped at Base. It optionally
// carries symbols, sections and entry points so every traversal strategy
// can run against it.
type Buffer struct {
	Base uint64
	Data []byte

	entries  []uint64
	symbols  map[string]uint64
	byAddr   []symbol
	sections map[string]section
}

type symbol struct {
	name string
	va   uint64
}

type section struct {
	start, size uint64
}

// NewBuffer maps data at base.
func NewBuffer(base uint64, data []byte) *Buffer {
	return &Buffer{
		Base:     base,
		Data:     data,
		symbols:  make(map[string]uint64),
		sections: make(map[string]section),
	}
}

// Read implements engine.Target.
func (b *Buffer) Read(va uint64, n int) ([]byte, error) {
	if !b.Contains(va) {
		return nil, &engine.AddrError{Kind: engine.ErrOutOfRange, VA: va,
			Err: fmt.Errorf("outside [%#x, %#x)", b.Base, b.End())}
	}
	if n < 0 {
		n = 0
	}
	off := va - b.Base
	end := off + uint64(n)
	if end > uint64(len(b.Data)) || end < off {
		end = uint64(len(b.Data))
	}
	return b.Data[off:end:end], nil
}

// Contains implements engine.Target.
func (b *Buffer) Contains(va uint64) bool {
	return va >= b.Base && va-b.Base < uint64(len(b.Data))
}

// End returns the address one past the last byte.
func (b *Buffer) End() uint64 {
	return b.Base + uint64(len(b.Data))
}

// AddSymbol names va. A later symbol with the same name replaces the
// earlier one.
func (b *Buffer) AddSymbol(name string, va uint64) *Buffer {
	if old, ok := b.symbols[name]; ok {
		i := sort.Search(len(b.byAddr), func(i int) bool { return b.byAddr[i].va >= old })
		for ; i < len(b.byAddr) && b.byAddr[i].va == old; i++ {
			if b.byAddr[i].name == name {
				b.byAddr = append(b.byAddr[:i], b.byAddr[i+1:]...)
				break
			}
		}
	}
	b.symbols[name] = va
	i := sort.Search(len(b.byAddr), func(i int) bool { return b.byAddr[i].va > va })
	b.byAddr = append(b.byAddr, symbol{})
	copy(b.byAddr[i+1:], b.byAddr[i:])
	b.byAddr[i] = symbol{name: name, va: va}
	return b
}

// AddSection names the range [start, start+size).
func (b *Buffer) AddSection(name string, start, size uint64) *Buffer {
	b.sections[name] = section{start: start, size: size}
	return b
}

// SetEntryPoints replaces the entry points.
func (b *Buffer) SetEntryPoints(vas ...uint64) *Buffer {
	b.entries = append([]uint64(nil), vas...)
	return b
}

// EntryPoints implements engine.EntryPointer.
func (b *Buffer) EntryPoints() []uint64 {
	return append([]uint64(nil), b.entries...)
}

// SymbolAddress implements engine.SymbolLookup.
func (b *Buffer) SymbolAddress(name string) (uint64, bool) {
	va, ok := b.symbols[name]
	return va, ok
}

// SectionBounds implements engine.SectionLookup.
func (b *Buffer) SectionBounds(name string) (uint64, uint64, bool) {
	s, ok := b.sections[name]
	return s.start, s.size, ok
}

// SymbolAt implements engine.SymbolNamer. It returns the closest symbol at
// or below va.
func (b *Buffer) SymbolAt(va uint64) (string, uint64, bool) {
	i := sort.Search(len(b.byAddr), func(i int) bool { return b.byAddr[i].va > va })
	if i == 0 {
		return "", 0, false
	}
	s := b.byAddr[i-1]
	return s.name, s.va, true
}
