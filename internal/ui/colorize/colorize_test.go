package colorize

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"traverse/internal/disasm"
)

func TestDisabled(t *testing.T) {
	t.Setenv("TRAVERSE_NO_COLOR", "1")

	inst := disasm.Instruction{VA: 0x10, Len: 1, Bytes: []byte{0xc3}, Op: "ret", Text: "ret"}
	if got, want := Instruction(inst, "x86", "att"), inst.String(); got != want {
		t.Errorf("Instruction = %q, want %q", got, want)
	}
	if got, err := Assembly("mov %eax, %ebx", "x86", "att"); err != nil || got != "mov %eax, %ebx" {
		t.Errorf("Assembly = %q, %v", got, err)
	}
	if got := Comment("; main"); got != "; main" {
		t.Errorf("Comment = %q", got)
	}
}

func TestInstructionKeepsText(t *testing.T) {
	t.Setenv("TRAVERSE_NO_COLOR", "")

	tests := []struct {
		family, syntax, text string
	}{
		{"x86", "att", "jmp 0x10"},
		{"x86", "intel", "mov eax, 0x1"},
		{"arm64", "intel", "b 0x400010"},
	}
	for _, tt := range tests {
		t.Run(tt.family+"/"+tt.syntax, func(t *testing.T) {
			inst := disasm.Instruction{VA: 0x400000, Len: 2, Bytes: []byte{0xeb, 0x0e}, Text: tt.text}
			got := Instruction(inst, tt.family, tt.syntax)
			if !strings.Contains(got, "\x1b[") {
				t.Errorf("no color codes in %q", got)
			}
			plain := ansi.Strip(got)
			for _, want := range []string{"400000", "eb 0e", tt.text} {
				if !strings.Contains(plain, want) {
					t.Errorf("%q missing %q", plain, want)
				}
			}
		})
	}
}
