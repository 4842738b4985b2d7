// Package engine implements the traversal strategies that turn a byte
// source into a Disassembly: single instruction, linear scan, and
// control-flow recursion seeded from an address, a symbol, a section or the
// target's entry points.
//
// The engine never decodes bytes itself. It drives a Decoder, follows
// branch operands through a Resolver and uses a Tracker so that every
// address is queued at most once, which guarantees termination on cyclic
// jump graphs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"traverse/internal/disasm"
)

// DefaultMaxInstructions bounds a traversal when Options.MaxInstructions
// is zero.
const DefaultMaxInstructions = 1_000_000

// Options tune a single traversal.
type Options struct {
	// Length is the number of bytes a Linear traversal covers. Zero means
	// until the readable range ends.
	Length uint64
	// EntryPoints overrides the target's entry points for Entry.
	EntryPoints []uint64
	// Symbol names the seed for Symbol.
	Symbol string
	// Section names the range for Section.
	Section string
	// Syntax and Arch are handed to a Configurable decoder.
	Syntax string
	Arch   string
	// MaxInstructions stops the traversal once that many instructions have
	// been emitted. Zero means DefaultMaxInstructions.
	MaxInstructions int
	// Tracker is used instead of a fresh VisitedTracker, which lets callers
	// chain traversals over the same target.
	Tracker Tracker
	// Sink receives instructions as they are decoded. When set they are
	// not stored in the returned Disassembly.
	Sink func(disasm.Instruction)
}

// Engine runs traversals. It keeps no per-call state, so one Engine may
// serve concurrent traversals of distinct targets.
type Engine struct {
	Decoder  Decoder
	Resolver Resolver

	logger *log.Logger
}

// New returns an Engine using dec and the DefaultResolver. A nil logger
// discards log output.
func New(dec Decoder, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{
		Decoder:  dec,
		Resolver: DefaultResolver{},
		logger:   logger,
	}
}

// Traverse disassembles t with strategy s starting at start.
//
// A Disassembly is always returned. Failures at individual addresses are
// recorded in it and never abort the traversal. The returned error is only
// set when the traversal could not start, for instance ErrInvalidTarget
// when the strategy's capability is missing; that error is recorded in the
// Disassembly as well.
func (e *Engine) Traverse(ctx context.Context, t Target, s Strategy, start uint64, opts Options) (*disasm.Disassembly, error) {
	out := disasm.New()

	fail := func(err error) (*disasm.Disassembly, error) {
		e.logger.Debug("traversal not started", "strategy", s, "error", err)
		out.RecordError(err)
		return out, err
	}

	if err := s.Check(t, opts); err != nil {
		return fail(err)
	}
	dec, err := e.decoderFor(opts)
	if err != nil {
		return fail(err)
	}

	r := &traversal{
		ctx:      ctx,
		target:   t,
		decoder:  dec,
		resolver: e.Resolver,
		tracker:  opts.Tracker,
		out:      out,
		sink:     opts.Sink,
		max:      opts.MaxInstructions,
		logger:   e.logger,
	}
	if r.resolver == nil {
		r.resolver = DefaultResolver{}
	}
	if r.tracker == nil {
		r.tracker = NewTracker()
	}
	if r.max <= 0 {
		r.max = DefaultMaxInstructions
	}

	e.logger.Debug("traversal start", "strategy", s, "start", fmt.Sprintf("%#x", start))

	switch s {
	case Single:
		r.single(start)
	case Linear:
		r.linear(start, opts.Length)
	case Cflow:
		r.cflow([]uint64{start})
	case Symbol:
		va, _ := t.(SymbolLookup).SymbolAddress(opts.Symbol)
		r.cflow([]uint64{va})
	case Section:
		va, size, _ := t.(SectionLookup).SectionBounds(opts.Section)
		if size == 0 {
			break
		}
		r.linear(va, size)
	case Entry:
		r.cflow(entryPoints(t, opts))
	}

	e.logger.Debug("traversal done", "strategy", s,
		"instructions", r.emitted, "errors", len(out.Errors()))
	return out, nil
}

func (e *Engine) decoderFor(opts Options) (Decoder, error) {
	if e.Decoder == nil {
		return nil, errors.New("no decoder configured")
	}
	if opts.Arch == "" && opts.Syntax == "" {
		return e.Decoder, nil
	}
	c, ok := e.Decoder.(Configurable)
	if !ok {
		return nil, fmt.Errorf("decoder does not support arch %q / syntax %q", opts.Arch, opts.Syntax)
	}
	dec, err := c.Configure(opts.Arch, opts.Syntax)
	if err != nil {
		return nil, fmt.Errorf("configuring decoder: %w", err)
	}
	return dec, nil
}
