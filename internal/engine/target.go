package engine

import "traverse/internal/disasm"

// Target is the byte source being disassembled. Implementations must be
// safe for concurrent reads.
type Target interface {
	// Read returns up to n bytes starting at va. Fewer bytes are returned
	// when the readable region ends early. An unreadable va yields an error
	// wrapping ErrOutOfRange.
	Read(va uint64, n int) ([]byte, error)
	// Contains reports whether va is a readable address.
	Contains(va uint64) bool
}

// EntryPointer is implemented by targets that designate traversal starts.
type EntryPointer interface {
	EntryPoints() []uint64
}

// SymbolLookup is implemented by targets that can map a symbol name to its
// address.
type SymbolLookup interface {
	SymbolAddress(name string) (uint64, bool)
}

// SectionLookup is implemented by targets that know named sections.
type SectionLookup interface {
	SectionBounds(name string) (start, size uint64, ok bool)
}

// SymbolNamer is implemented by targets that can name an address. Decoders
// use it to print symbolic branch targets.
type SymbolNamer interface {
	SymbolAt(va uint64) (name string, base uint64, ok bool)
}

// Decoder decodes one instruction at an address of a target.
type Decoder interface {
	Decode(t Target, va uint64) (disasm.Instruction, error)
}

// Configurable is implemented by decoders that can derive a decoder for a
// different architecture or syntax. Empty arguments keep the current
// setting.
type Configurable interface {
	Configure(arch, syntax string) (Decoder, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(t Target, va uint64) (disasm.Instruction, error)

// Decode calls f(t, va).
func (f DecoderFunc) Decode(t Target, va uint64) (disasm.Instruction, error) {
	return f(t, va)
}
