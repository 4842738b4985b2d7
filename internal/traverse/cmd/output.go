package cmd

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	pathpkg "path/filepath"
	"strings"

	"traverse/internal/analysis"
	"traverse/internal/disasm"
	"traverse/internal/engine"
	"traverse/internal/ui/colorize"
)

// maxReportErrors caps the error list in the summary report.
const maxReportErrors = 20

// fileDigest returns the sha256 of the file at path in hex.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to calculate digest: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// formatListing renders d in address order. Symbol starts get a label
// line; with blocks set every basic block gets a header naming its
// successors. Recorded errors follow the instructions as comments.
func formatListing(s *session, req request, d *disasm.Disassembly, blocks bool, limit int) string {
	var b strings.Builder
	family, syntax := s.dec.Family(), s.dec.Syntax()
	namer, _ := s.file.Target.(engine.SymbolNamer)

	label := func(va uint64) {
		if namer == nil {
			return
		}
		if name, base, ok := namer.SymbolAt(va); ok && base == va {
			b.WriteString(colorize.Comment(fmt.Sprintf("%x <%s>:", va, analysis.CachedDemangle(name))))
			b.WriteByte('\n')
		}
	}
	line := func(inst disasm.Instruction) {
		label(inst.VA)
		b.WriteString(colorize.Instruction(inst, family, syntax))
		b.WriteByte('\n')
	}

	n := 0
	if blocks {
	outer:
		for _, blk := range analysis.Blocks(d, s.seeds(req)...) {
			b.WriteString(colorize.Comment(blockHeader(blk)))
			b.WriteByte('\n')
			for _, inst := range blk.Instructions {
				if limit > 0 && n >= limit {
					break outer
				}
				line(inst)
				n++
			}
		}
	} else {
		for _, inst := range d.Instructions() {
			if limit > 0 && n >= limit {
				break
			}
			line(inst)
			n++
		}
	}
	if limit > 0 && d.Len() > limit {
		b.WriteString(colorize.Comment(fmt.Sprintf("; %d more instructions not shown", d.Len()-limit)))
		b.WriteByte('\n')
	}

	for _, e := range d.Errors() {
		b.WriteString(colorize.Comment("; error: " + e))
		b.WriteByte('\n')
	}
	return b.String()
}

func blockHeader(blk analysis.Block) string {
	succs := make([]string, len(blk.Succs))
	for i, va := range blk.Succs {
		succs[i] = fmt.Sprintf("%x", va)
	}
	h := fmt.Sprintf("; block %x-%x (%d)", blk.Start, blk.End, blk.Len())
	if len(succs) > 0 {
		h += " -> " + strings.Join(succs, ", ")
	}
	return h
}

type jsonBlock struct {
	Start uint64   `json:"start"`
	End   uint64   `json:"end"`
	Count int      `json:"count"`
	Succs []uint64 `json:"succs,omitempty"`
}

// JSONOutput is the machine-readable result of a traversal.
type JSONOutput struct {
	File        string              `json:"file"`
	Kind        string              `json:"kind"`
	Arch        string              `json:"arch"`
	Syntax      string              `json:"syntax"`
	Strategy    string              `json:"strategy"`
	Start       uint64              `json:"start"`
	Disassembly *disasm.Disassembly `json:"disassembly"`
	Blocks      []jsonBlock         `json:"blocks,omitempty"`
}

func writeJSON(w io.Writer, s *session, req request, d *disasm.Disassembly, blocks bool) error {
	out := JSONOutput{
		File:        s.cfg.File,
		Kind:        string(s.file.Kind),
		Arch:        s.dec.Arch(),
		Syntax:      s.dec.Syntax(),
		Strategy:    req.strategy.String(),
		Start:       req.start,
		Disassembly: d,
	}
	if blocks {
		for _, blk := range analysis.Blocks(d, s.seeds(req)...) {
			out.Blocks = append(out.Blocks, jsonBlock{blk.Start, blk.End, blk.Len(), blk.Succs})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// reportMarkdown summarizes a traversal for rendering with glamour.
func reportMarkdown(s *session, req request, d *disasm.Disassembly, digest string) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("; %s (%s)", pathpkg.Base(s.cfg.File), s.file.Kind))
	if digest != "" {
		lines = append(lines, "; "+digest)
	}
	lines = append(lines,
		"",
		fmt.Sprintf("; arch %s, syntax %s", s.dec.Arch(), s.dec.Syntax()),
		"; "+req.title(),
	)

	var md strings.Builder
	fmt.Fprintf(&md, "# Traverse\n\n```\n%s\n```\n\n", strings.Join(lines, "\n"))

	fmt.Fprintf(&md, "## Result\n\n")
	fmt.Fprintf(&md, "- **%d** instructions\n", d.Len())
	if insts := d.Instructions(); len(insts) > 0 {
		fmt.Fprintf(&md, "- range `%#x` - `%#x`\n", insts[0].VA, insts[len(insts)-1].End())
	}
	fmt.Fprintf(&md, "- **%d** basic blocks\n", len(analysis.Blocks(d, s.seeds(req)...)))
	fmt.Fprintf(&md, "- **%d** errors\n", len(d.Errors()))

	if errs := d.Errors(); len(errs) > 0 {
		md.WriteString("\n## Errors\n\n")
		for i, e := range errs {
			if i == maxReportErrors {
				fmt.Fprintf(&md, "- ... %d more\n", len(errs)-i)
				break
			}
			fmt.Fprintf(&md, "- `%s`\n", e)
		}
	}

	if total, hits, top := analysis.DemangleCacheStats(); total > 0 {
		md.WriteString("\n## Symbols\n\n")
		fmt.Fprintf(&md, "- **%d** demangled, **%d** cache hits\n", total, hits)
		for _, sym := range top {
			fmt.Fprintf(&md, "- `%s`\n", sym)
		}
	}
	return md.String()
}
