package engine

import (
	"fmt"
	"strings"
)

// Strategy selects how addresses are discovered during a traversal.
type Strategy int

const (
	// Single decodes one instruction at the start address.
	Single Strategy = iota
	// Linear decodes sequential addresses with no regard to control flow.
	Linear
	// Cflow follows jump and call targets from the start address and stops
	// a path at unconditional jumps and returns.
	Cflow
	// Symbol is Cflow seeded at the address of a named symbol.
	Symbol
	// Section is Linear over the bounds of a named section.
	Section
	// Entry is Cflow seeded at every entry point of the target.
	Entry
)

var strategyNames = [...]string{
	Single:  "single",
	Linear:  "linear",
	Cflow:   "cflow",
	Symbol:  "symbol",
	Section: "section",
	Entry:   "entry",
}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Strategies returns all strategies in declaration order.
func Strategies() []Strategy {
	return []Strategy{Single, Linear, Cflow, Symbol, Section, Entry}
}

// ParseStrategy maps a strategy name to a Strategy. The bfd-* spellings
// used by older front ends are accepted as aliases.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "bfd-symbol":
		return Symbol, nil
	case "bfd-section":
		return Section, nil
	case "bfd-entry":
		return Entry, nil
	}
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownStrategy, name)
}

// Recursive reports whether the strategy follows control flow.
func (s Strategy) Recursive() bool {
	return s == Cflow || s == Symbol || s == Entry
}

// Check verifies that t offers the capability s needs, given opts.
func (s Strategy) Check(t Target, opts Options) error {
	if t == nil {
		return fmt.Errorf("%w: no target", ErrInvalidTarget)
	}
	switch s {
	case Single, Linear, Cflow:
		return nil
	case Symbol:
		sl, ok := t.(SymbolLookup)
		if !ok {
			return fmt.Errorf("%w: target has no symbols", ErrInvalidTarget)
		}
		if _, ok := sl.SymbolAddress(opts.Symbol); !ok {
			return fmt.Errorf("%w: symbol %q not found", ErrInvalidTarget, opts.Symbol)
		}
		return nil
	case Section:
		sl, ok := t.(SectionLookup)
		if !ok {
			return fmt.Errorf("%w: target has no sections", ErrInvalidTarget)
		}
		if _, _, ok := sl.SectionBounds(opts.Section); !ok {
			return fmt.Errorf("%w: section %q not found", ErrInvalidTarget, opts.Section)
		}
		return nil
	case Entry:
		if len(entryPoints(t, opts)) == 0 {
			return fmt.Errorf("%w: target has no entry points", ErrInvalidTarget)
		}
		return nil
	}
	return fmt.Errorf("%w %v", ErrUnknownStrategy, s)
}

func entryPoints(t Target, opts Options) []uint64 {
	if len(opts.EntryPoints) > 0 {
		return opts.EntryPoints
	}
	if ep, ok := t.(EntryPointer); ok {
		return ep.EntryPoints()
	}
	return nil
}
