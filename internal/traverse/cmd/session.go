package cmd

import (
	"context"
	"debug/elf"
	"fmt"

	"github.com/charmbracelet/log"

	"traverse/internal/analysis"
	"traverse/internal/decoder"
	"traverse/internal/disasm"
	"traverse/internal/engine"
	"traverse/internal/target"
)

// request is one traversal of a session's file.
type request struct {
	strategy engine.Strategy
	start    uint64
	opts     engine.Options
}

func (r request) title() string {
	if r.strategy == engine.Symbol {
		return "symbol " + analysis.CachedDemangle(r.opts.Symbol)
	}
	return fmt.Sprintf("%s from %#x", r.strategy, r.start)
}

// session is an opened file with a decoder and engine matching it. req is
// the traversal the configuration asked for.
type session struct {
	cfg  Config
	file *target.File
	dec  *decoder.Decoder
	eng  *engine.Engine
	req  request
}

// strategyName picks the strategy for cfg. Without an explicit strategy a
// symbol, section or entry list selects the strategy that uses it.
func strategyName(cfg Config) string {
	switch {
	case cfg.Strategy != "":
		return cfg.Strategy
	case cfg.Symbol != "":
		return engine.Symbol.String()
	case cfg.Section != "":
		return engine.Section.String()
	case len(cfg.Entries) > 0:
		return engine.Entry.String()
	default:
		return engine.Linear.String()
	}
}

// openSession validates cfg, loads the file and prepares the traversal it
// describes.
func openSession(cfg Config, logger *log.Logger) (*session, error) {
	strategy, err := engine.ParseStrategy(strategyName(cfg))
	if err != nil {
		return nil, err
	}

	var vma uint64
	if cfg.VMA != "" {
		if vma, err = parseAddr(cfg.VMA); err != nil {
			return nil, fmt.Errorf("vma: %w", err)
		}
	}

	file, err := target.Open(cfg.File, vma, cfg.Raw)
	if err != nil {
		return nil, err
	}

	arch := cfg.Arch
	if arch == "" && file.Image != nil {
		arch = archForMachine(file.Image.File.Machine)
	}
	dec, err := decoder.New(arch, cfg.Syntax)
	if err != nil {
		file.Close()
		return nil, err
	}

	s := &session{
		cfg:  cfg,
		file: file,
		dec:  dec,
		eng:  engine.New(dec, logger),
		req: request{
			strategy: strategy,
			opts: engine.Options{
				Length:          cfg.Length,
				Symbol:          cfg.Symbol,
				Section:         cfg.Section,
				MaxInstructions: cfg.MaxInstructions,
			},
		},
	}
	for _, e := range cfg.Entries {
		va, err := parseAddr(e)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("entry: %w", err)
		}
		s.req.opts.EntryPoints = append(s.req.opts.EntryPoints, va)
	}

	switch {
	case cfg.Start != "":
		if s.req.start, err = parseAddr(cfg.Start); err != nil {
			file.Close()
			return nil, fmt.Errorf("start: %w", err)
		}
	case file.Image != nil:
		// ELF files have nothing mapped at 0; default to the code section.
		s.req.start = file.Image.Text.VA
		if strategy == engine.Linear && s.req.opts.Length == 0 {
			s.req.opts.Length = file.Image.Text.Size
		}
	default:
		s.req.start = vma
	}
	return s, nil
}

// archForMachine picks the decoder for an ELF machine type.
func archForMachine(m elf.Machine) string {
	switch m {
	case elf.EM_AARCH64:
		return "arm64"
	case elf.EM_386:
		return "x86"
	default:
		return decoder.DefaultArch
	}
}

func (s *session) Close() error {
	return s.file.Close()
}

// run performs req on the session's file.
func (s *session) run(ctx context.Context, req request) (*disasm.Disassembly, error) {
	return s.eng.Traverse(ctx, s.file.Target, req.strategy, req.start, req.opts)
}

// symbolRequest follows control flow from a named symbol, keeping the rest
// of the configured options. start is the symbol's address when known.
func (s *session) symbolRequest(name string) request {
	req := s.req
	req.strategy = engine.Symbol
	req.opts.Symbol = name
	req.start = 0
	if sl, ok := s.file.Target.(engine.SymbolLookup); ok {
		if va, ok := sl.SymbolAddress(name); ok {
			req.start = va
		}
	}
	return req
}

// seeds returns the addresses req started from, used as block leaders.
// Sweeps start at one address; recursive strategies at each of their roots.
func (s *session) seeds(req request) []uint64 {
	if !req.strategy.Recursive() {
		if req.strategy == engine.Section {
			if sl, ok := s.file.Target.(engine.SectionLookup); ok {
				if va, _, ok := sl.SectionBounds(req.opts.Section); ok {
					return []uint64{va}
				}
			}
			return nil
		}
		return []uint64{req.start}
	}

	switch req.strategy {
	case engine.Entry:
		if len(req.opts.EntryPoints) > 0 {
			return req.opts.EntryPoints
		}
		if ep, ok := s.file.Target.(engine.EntryPointer); ok {
			return ep.EntryPoints()
		}
		return nil
	case engine.Symbol:
		if sl, ok := s.file.Target.(engine.SymbolLookup); ok {
			if va, ok := sl.SymbolAddress(req.opts.Symbol); ok {
				return []uint64{va}
			}
		}
		return nil
	default:
		return []uint64{req.start}
	}
}
