package decoder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"traverse/internal/disasm"
	"traverse/internal/engine"
	"traverse/internal/target"
)

func mustNew(t *testing.T, arch, syntax string) *Decoder {
	t.Helper()
	d, err := New(arch, syntax)
	if err != nil {
		t.Fatalf("New(%q, %q): %v", arch, syntax, err)
	}
	return d
}

func TestNew(t *testing.T) {
	tests := []struct {
		arch, syntax      string
		wantArch, wantSyn string
		wantErr           error
	}{
		{"", "", DefaultArch, SyntaxATT, nil},
		{"x86", "intel", "x86", SyntaxIntel, nil},
		{"X86_64", "", "x86_64", SyntaxATT, nil},
		{"x86_64_intel", "", "x86_64_intel", SyntaxIntel, nil},
		{"x86_att", "att", "x86_att", SyntaxATT, nil},
		{"x86_att", "intel", "", "", ErrUnknownSyntax},
		{"8086", "att", "8086", SyntaxATT, nil},
		{"arm64", "intel", "arm64", SyntaxIntel, nil},
		{"mips", "", "", "", ErrUnknownArch},
		{"x86", "masm", "", "", ErrUnknownSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.arch+"/"+tt.syntax, func(t *testing.T) {
			d, err := New(tt.arch, tt.syntax)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d.Arch() != tt.wantArch || d.Syntax() != tt.wantSyn {
				t.Errorf("got %s/%s, want %s/%s", d.Arch(), d.Syntax(), tt.wantArch, tt.wantSyn)
			}
		})
	}
}

func TestConfigure(t *testing.T) {
	d := mustNew(t, "x86_64", "intel")

	got, err := d.Configure("", "")
	if err != nil {
		t.Fatal(err)
	}
	if c := got.(*Decoder); c.Arch() != "x86_64" || c.Syntax() != SyntaxIntel {
		t.Errorf("Configure keeps %s/%s, want x86_64/intel", c.Arch(), c.Syntax())
	}

	got, err = d.Configure("", "att")
	if err != nil {
		t.Fatal(err)
	}
	if c := got.(*Decoder); c.Syntax() != SyntaxATT {
		t.Errorf("syntax = %s, want att", c.Syntax())
	}

	got, err = d.Configure("arm64", "")
	if err != nil {
		t.Fatal(err)
	}
	if c := got.(*Decoder); c.Family() != "arm64" {
		t.Errorf("family = %s, want arm64", c.Family())
	}

	if _, err := d.Configure("z80", ""); !errors.Is(err, ErrUnknownArch) {
		t.Errorf("Configure(z80) = %v", err)
	}
}

func TestListings(t *testing.T) {
	if diff := cmp.Diff([]string{"att", "intel"}, Syntaxes()); diff != "" {
		t.Errorf("Syntaxes (-want +got):\n%s", diff)
	}
	archs := Architectures()
	for _, want := range []string{"8086", "x86", "x86_64", "x86_64_intel", "arm64"} {
		found := false
		for _, a := range archs {
			found = found || a == want
		}
		if !found {
			t.Errorf("Architectures() lacks %s", want)
		}
	}
}

func TestDecodeX86(t *testing.T) {
	d := mustNew(t, "x86_64", "")

	tests := []struct {
		name   string
		code   []byte
		op     string
		length int
		flow   disasm.Flow
		branch []disasm.Operand
	}{
		{"nop", []byte{0x90}, "nop", 1, disasm.FlowNormal, nil},
		{"jmp short", []byte{0xeb, 0xfe}, "jmp", 2, disasm.FlowJump,
			[]disasm.Operand{disasm.RelOperand(-2).AsBranch()}},
		{"ret", []byte{0xc3}, "ret", 1, disasm.FlowReturn, nil},
		{"je", []byte{0x74, 0x02}, "je", 2, disasm.FlowCondJump,
			[]disasm.Operand{disasm.RelOperand(2).AsBranch()}},
		{"call", []byte{0xe8, 0x10, 0x00, 0x00, 0x00}, "call", 5, disasm.FlowCall,
			[]disasm.Operand{disasm.RelOperand(0x10).AsBranch()}},
		{"jmp rax", []byte{0xff, 0xe0}, "jmp", 2, disasm.FlowJump,
			[]disasm.Operand{disasm.RegOperand("rax").AsBranch()}},
		{"ud2", []byte{0x0f, 0x0b}, "ud2", 2, disasm.FlowInvalid, nil},
		{"hlt", []byte{0xf4}, "hlt", 1, disasm.FlowReturn, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := target.NewBuffer(0x1000, tt.code)
			inst, err := d.Decode(buf, 0x1000)
			if err != nil {
				t.Fatal(err)
			}
			if inst.VA != 0x1000 || inst.Len != tt.length || inst.Op != tt.op || inst.Flow != tt.flow {
				t.Errorf("got va=%#x len=%d op=%s flow=%s, want len=%d op=%s flow=%s",
					inst.VA, inst.Len, inst.Op, inst.Flow, tt.length, tt.op, tt.flow)
			}
			if !bytes.Equal(inst.Bytes, tt.code[:tt.length]) {
				t.Errorf("bytes = % x", inst.Bytes)
			}
			if diff := cmp.Diff(tt.branch, inst.BranchOperands()); diff != "" {
				t.Errorf("branch operands (-want +got):\n%s", diff)
			}
			if !strings.HasPrefix(inst.Text, tt.op) {
				t.Errorf("text %q does not start with %q", inst.Text, tt.op)
			}
		})
	}
}

func TestDecodeX86Syntax(t *testing.T) {
	code := []byte{0x48, 0x89, 0xe5} // mov rbp, rsp
	buf := target.NewBuffer(0, code)

	att, err := mustNew(t, "x86_64", "att").Decode(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	intel, err := mustNew(t, "x86_64_intel", "").Decode(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(att.Text, "%rsp") {
		t.Errorf("att text %q lacks %%rsp", att.Text)
	}
	if strings.Contains(intel.Text, "%") || !strings.Contains(intel.Text, "rbp") {
		t.Errorf("intel text %q", intel.Text)
	}
	if att.Len != 3 || intel.Len != 3 {
		t.Errorf("lengths %d/%d, want 3", att.Len, intel.Len)
	}
}

func TestDecodeX86Modes(t *testing.T) {
	// b8 imm: mov eax, imm32 in 32-bit mode but mov ax, imm16 in 16-bit mode
	code := []byte{0xb8, 0x01, 0x00, 0x00, 0x00}
	buf := target.NewBuffer(0, code)

	in32, err := mustNew(t, "x86", "").Decode(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	in16, err := mustNew(t, "8086", "").Decode(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if in32.Len != 5 || in16.Len != 3 {
		t.Errorf("lengths 32=%d 16=%d, want 5 and 3", in32.Len, in16.Len)
	}
}

func TestDecodeX86Errors(t *testing.T) {
	d := mustNew(t, "x86_64", "")

	t.Run("truncated at end", func(t *testing.T) {
		_, err := d.Decode(target.NewBuffer(0, []byte{0xe8, 0x00}), 0)
		if !errors.Is(err, engine.ErrOutOfRange) {
			t.Fatalf("err = %v, want ErrOutOfRange", err)
		}
	})
	t.Run("unmapped", func(t *testing.T) {
		_, err := d.Decode(target.NewBuffer(0, []byte{0x90}), 8)
		if !errors.Is(err, engine.ErrOutOfRange) {
			t.Fatalf("err = %v, want ErrOutOfRange", err)
		}
	})
	t.Run("invalid in long mode", func(t *testing.T) {
		// push es does not exist in 64-bit mode
		code := append([]byte{0x06}, bytes.Repeat([]byte{0x90}, 15)...)
		_, err := d.Decode(target.NewBuffer(0, code), 0)
		if !errors.Is(err, engine.ErrDecode) {
			t.Fatalf("err = %v, want ErrDecode", err)
		}
	})
}

func TestDecodeX86Symbols(t *testing.T) {
	buf := target.NewBuffer(0x1000, make([]byte, 0x20)).AddSymbol("helper", 0x1010)
	copy(buf.Data, []byte{0xe8, 0x0b, 0x00, 0x00, 0x00}) // call 0x1010

	inst, err := mustNew(t, "x86_64", "att").Decode(buf, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(inst.Text, "helper") {
		t.Errorf("text %q does not name helper", inst.Text)
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestDecodeARM64(t *testing.T) {
	d := mustNew(t, "arm64", "")
	const va = 0x4000

	tests := []struct {
		name   string
		word   uint32
		op     string
		flow   disasm.Flow
		branch []disasm.Operand
	}{
		{"nop", 0xd503201f, "nop", disasm.FlowNormal, nil},
		{"ret", 0xd65f03c0, "ret", disasm.FlowReturn, nil},
		{"b", 0x14000002, "b", disasm.FlowJump,
			[]disasm.Operand{disasm.ImmOperand(va + 8).AsBranch()}},
		{"bl", 0x94000004, "bl", disasm.FlowCall,
			[]disasm.Operand{disasm.ImmOperand(va + 16).AsBranch()}},
		{"b.eq", 0x54000040, "b", disasm.FlowCondJump,
			[]disasm.Operand{disasm.ImmOperand(va + 8).AsBranch()}},
		{"cbz", 0xb4000040, "cbz", disasm.FlowCondJump,
			[]disasm.Operand{disasm.ImmOperand(va + 8).AsBranch()}},
		{"br x16", 0xd61f0200, "br", disasm.FlowJump,
			[]disasm.Operand{disasm.RegOperand("x16").AsBranch()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := d.Decode(target.NewBuffer(va, le32(tt.word)), va)
			if err != nil {
				t.Fatal(err)
			}
			if inst.Len != 4 || inst.Op != tt.op || inst.Flow != tt.flow {
				t.Errorf("got len=%d op=%s flow=%s, want op=%s flow=%s", inst.Len, inst.Op, inst.Flow, tt.op, tt.flow)
			}
			if diff := cmp.Diff(tt.branch, inst.BranchOperands()); diff != "" {
				t.Errorf("branch operands (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := d.Decode(target.NewBuffer(va, []byte{0x1f, 0x20}), va); !errors.Is(err, engine.ErrOutOfRange) {
		t.Errorf("short read: err = %v, want ErrOutOfRange", err)
	}
}

func traverse(t *testing.T, tgt engine.Target, s engine.Strategy, start uint64, opts engine.Options) *disasm.Disassembly {
	t.Helper()
	e := engine.New(mustNew(t, "x86_64", ""), nil)
	d, err := e.Traverse(context.Background(), tgt, s, start, opts)
	if err != nil {
		t.Fatalf("Traverse(%s): %v", s, err)
	}
	return d
}

func addrs(d *disasm.Disassembly) []uint64 {
	var out []uint64
	for _, inst := range d.Instructions() {
		out = append(out, inst.VA)
	}
	return out
}

func TestTraverseNopJump(t *testing.T) {
	code := []byte{0x90, 0xeb, 0xfe}

	lin := traverse(t, target.NewBuffer(0, code), engine.Linear, 0, engine.Options{Length: 3})
	if diff := cmp.Diff([]uint64{0, 1}, addrs(lin)); diff != "" {
		t.Errorf("linear (-want +got):\n%s", diff)
	}
	if n := len(lin.Errors()); n != 0 {
		t.Errorf("linear errors: %v", lin.Errors())
	}
	if jmp, _ := lin.Get(1); jmp.Flow != disasm.FlowJump || jmp.Len != 2 {
		t.Errorf("instruction at 1 = %+v", jmp)
	}

	cf := traverse(t, target.NewBuffer(0, code), engine.Cflow, 0, engine.Options{})
	if diff := cmp.Diff([]uint64{0, 1}, addrs(cf)); diff != "" {
		t.Errorf("cflow (-want +got):\n%s", diff)
	}
	// jmp . resolves to itself, which is already queued
	if len(cf.Errors()) > 1 {
		t.Errorf("cflow errors: %v", cf.Errors())
	}
}

func TestTraverseEntryReturns(t *testing.T) {
	code := bytes.Repeat([]byte{0xcc}, 0x50)
	code[0x10] = 0xc3
	code[0x40] = 0xc3
	buf := target.NewBuffer(0, code).SetEntryPoints(0x10, 0x40)

	d := traverse(t, buf, engine.Entry, 0, engine.Options{})
	if diff := cmp.Diff([]uint64{0x10, 0x40}, addrs(d)); diff != "" {
		t.Errorf("entry (-want +got):\n%s", diff)
	}
	if len(d.Errors()) != 0 {
		t.Errorf("errors: %v", d.Errors())
	}
}

func TestTraverseFunction(t *testing.T) {
	code := []byte{
		0x85, 0xff, // 0: test edi, edi
		0x74, 0x07, // 2: je 0xb
		0xe8, 0x03, 0x00, 0x00, 0x00, // 4: call 0xc
		0xeb, 0x02, // 9: jmp 0xd
		0xc3, // b: ret
		0xc3, // c: ret
		0xc3, // d: ret
	}
	buf := target.NewBuffer(0x400000, code).
		AddSymbol("f", 0x400000).
		AddSection(".text", 0x400000, uint64(len(code)))
	want := []uint64{0x400000, 0x400002, 0x400004, 0x400009, 0x40000b, 0x40000c, 0x40000d}

	cf := traverse(t, buf, engine.Symbol, 0, engine.Options{Symbol: "f"})
	if diff := cmp.Diff(want, addrs(cf)); diff != "" {
		t.Errorf("symbol (-want +got):\n%s", diff)
	}
	if len(cf.Errors()) != 0 {
		t.Errorf("symbol errors: %v", cf.Errors())
	}

	sec := traverse(t, buf, engine.Section, 0, engine.Options{Section: ".text"})
	if diff := cmp.Diff(want, addrs(sec)); diff != "" {
		t.Errorf("section (-want +got):\n%s", diff)
	}

	// the call target alone
	one := traverse(t, buf, engine.Cflow, 0x40000c, engine.Options{})
	if diff := cmp.Diff([]uint64{0x40000c}, addrs(one)); diff != "" {
		t.Errorf("cflow from ret (-want +got):\n%s", diff)
	}
}
