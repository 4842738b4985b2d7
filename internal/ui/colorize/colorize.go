// Package colorize highlights disassembly listings for the terminal with
// chroma. Set TRAVERSE_NO_COLOR to disable all coloring.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"traverse/internal/disasm"
)

// Enabled reports whether output may carry ANSI colors.
func Enabled() bool {
	return os.Getenv("TRAVERSE_NO_COLOR") == ""
}

// lexerFor picks an assembly lexer for an architecture family ("x86" or
// "arm64") and syntax ("att" or "intel").
func lexerFor(family, syntax string) chroma.Lexer {
	var candidates []string
	switch {
	case family == "arm64":
		candidates = []string{"armasm", "gas"}
	case syntax == "intel":
		candidates = []string{"nasm", "gas"}
	default:
		candidates = []string{"gas", "nasm"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"disasm-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights a block of assembly text. The input is returned
// unchanged when coloring is disabled or no lexer is available.
func Assembly(code, family, syntax string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	lexer := lexerFor(family, syntax)
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Instruction renders one listing line: address in gray, encoding dimmed
// and the instruction text highlighted.
func Instruction(inst disasm.Instruction, family, syntax string) string {
	if !Enabled() {
		return inst.String()
	}

	text := inst.Text
	if text == "" {
		text = inst.Op
	}
	colored, err := Assembly(text, family, syntax)
	if err != nil {
		colored = text
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%-10x\033[0m \033[38;2;110;110;110m%-24s\033[0m %s",
		inst.VA, disasm.HexBytes(inst.Bytes), colored)
}

// Comment renders an annotation line such as a symbol label.
func Comment(line string) string {
	if !Enabled() {
		return line
	}
	return fmt.Sprintf("\033[38;2;235;194;237m%s\033[0m", line)
}
