// Package decoder turns machine code into disasm.Instructions for the
// traversal engine. x86 (16, 32 and 64-bit) is decoded with
// golang.org/x/arch/x86/x86asm and AArch64 with
// golang.org/x/arch/arm64/arm64asm.
package decoder

import (
	"errors"
	"fmt"
	"strings"

	"traverse/internal/disasm"
	"traverse/internal/engine"
)

// Syntax names accepted by New.
const (
	SyntaxATT   = "att"
	SyntaxIntel = "intel"
)

// DefaultArch is used when New is given an empty architecture.
const DefaultArch = "x86_64"

var (
	ErrUnknownArch   = errors.New("unknown architecture")
	ErrUnknownSyntax = errors.New("unknown syntax")
)

type family uint8

const (
	familyX86 family = iota
	familyARM64
)

type archSpec struct {
	name   string
	family family
	mode   int
	// syntax is fixed for the *_att and *_intel variants.
	syntax string
}

var archs = []archSpec{
	{"8086", familyX86, 16, ""},
	{"x86", familyX86, 32, ""},
	{"x86_att", familyX86, 32, SyntaxATT},
	{"x86_intel", familyX86, 32, SyntaxIntel},
	{"x86_64", familyX86, 64, ""},
	{"x86_64_att", familyX86, 64, SyntaxATT},
	{"x86_64_intel", familyX86, 64, SyntaxIntel},
	{"arm64", familyARM64, 64, ""},
}

// Architectures returns the accepted architecture names.
func Architectures() []string {
	names := make([]string, len(archs))
	for i, a := range archs {
		names[i] = a.name
	}
	return names
}

// Syntaxes returns the accepted syntax names, default first.
func Syntaxes() []string {
	return []string{SyntaxATT, SyntaxIntel}
}

// Decoder decodes one architecture in one syntax. It holds no mutable
// state and may be shared between traversals.
type Decoder struct {
	arch   archSpec
	syntax string
}

var (
	_ engine.Decoder      = (*Decoder)(nil)
	_ engine.Configurable = (*Decoder)(nil)
)

// New returns a decoder for arch in syntax. Empty arguments select
// DefaultArch and the architecture's default syntax. A syntax that
// contradicts a syntax-fixing architecture such as x86_64_intel is an
// error.
func New(arch, syntax string) (*Decoder, error) {
	arch = strings.ToLower(strings.TrimSpace(arch))
	syntax = strings.ToLower(strings.TrimSpace(syntax))
	if arch == "" {
		arch = DefaultArch
	}

	var def archSpec
	found := false
	for _, a := range archs {
		if a.name == arch {
			def, found = a, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownArch, arch, strings.Join(Architectures(), ", "))
	}

	switch syntax {
	case "":
		syntax = def.syntax
		if syntax == "" {
			syntax = SyntaxATT
		}
	case SyntaxATT, SyntaxIntel:
		if def.syntax != "" && def.syntax != syntax {
			return nil, fmt.Errorf("%w %q: architecture %s implies %s", ErrUnknownSyntax, syntax, def.name, def.syntax)
		}
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownSyntax, syntax, strings.Join(Syntaxes(), ", "))
	}

	return &Decoder{arch: def, syntax: syntax}, nil
}

// Arch returns the architecture name.
func (d *Decoder) Arch() string { return d.arch.name }

// Syntax returns the syntax name.
func (d *Decoder) Syntax() string { return d.syntax }

// Family returns "x86" or "arm64".
func (d *Decoder) Family() string {
	if d.arch.family == familyARM64 {
		return "arm64"
	}
	return "x86"
}

// Decode implements engine.Decoder.
func (d *Decoder) Decode(t engine.Target, va uint64) (disasm.Instruction, error) {
	switch d.arch.family {
	case familyARM64:
		return d.decodeARM64(t, va)
	default:
		return d.decodeX86(t, va)
	}
}

// Configure implements engine.Configurable. With an empty arch the
// current architecture and syntax are kept unless overridden.
func (d *Decoder) Configure(arch, syntax string) (engine.Decoder, error) {
	if arch == "" {
		arch = d.arch.name
		if syntax == "" {
			syntax = d.syntax
		}
	}
	return New(arch, syntax)
}

// read fetches up to n bytes at va. Errors from the target are passed
// through so that bounds failures keep their kind.
func read(t engine.Target, va uint64, n int) ([]byte, error) {
	b, err := t.Read(va, n)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, &engine.AddrError{Kind: engine.ErrOutOfRange, VA: va}
	}
	return b, nil
}

// symLookup adapts the target's SymbolNamer for the x86asm printers.
func symLookup(t engine.Target) func(uint64) (string, uint64) {
	sn, ok := t.(engine.SymbolNamer)
	if !ok {
		return nil
	}
	return func(va uint64) (string, uint64) {
		name, base, ok := sn.SymbolAt(va)
		if !ok {
			return "", 0
		}
		return name, base
	}
}
