package disasm

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
)

// Disassembly is the result of a traversal: decoded instructions keyed by
// address plus the errors met along the way, in the order they happened.
//
// A Disassembly is filled by a single traversal and is read-only once the
// traversal returns. It is not safe for concurrent mutation.
type Disassembly struct {
	insts map[uint64]Instruction
	keys  []uint64 // sorted ascending
	errs  []error
}

// New returns an empty Disassembly.
func New() *Disassembly {
	return &Disassembly{insts: make(map[uint64]Instruction)}
}

// Insert stores inst under its address. A later insert for the same
// address replaces the earlier one.
func (d *Disassembly) Insert(inst Instruction) {
	if _, exists := d.insts[inst.VA]; !exists {
		d.insertKey(inst.VA)
	}
	d.insts[inst.VA] = inst
}

func (d *Disassembly) insertKey(va uint64) {
	// linear traversals insert in ascending order
	if n := len(d.keys); n == 0 || d.keys[n-1] < va {
		d.keys = append(d.keys, va)
		return
	}
	i := sort.Search(len(d.keys), func(i int) bool { return d.keys[i] >= va })
	d.keys = append(d.keys, 0)
	copy(d.keys[i+1:], d.keys[i:])
	d.keys[i] = va
}

// RecordError appends err to the error log.
func (d *Disassembly) RecordError(err error) {
	if err != nil {
		d.errs = append(d.errs, err)
	}
}

// Errors returns the error messages in the order they were recorded.
func (d *Disassembly) Errors() []string {
	msgs := make([]string, len(d.errs))
	for i, err := range d.errs {
		msgs[i] = err.Error()
	}
	return msgs
}

// Err joins all recorded errors, or returns nil if there were none.
func (d *Disassembly) Err() error {
	return errors.Join(d.errs...)
}

// Get returns the instruction starting exactly at va.
func (d *Disassembly) Get(va uint64) (Instruction, bool) {
	inst, ok := d.insts[va]
	return inst, ok
}

// Containing returns the instruction whose byte range covers va: the one
// with the largest address <= va, provided it is long enough to reach va.
func (d *Disassembly) Containing(va uint64) (Instruction, bool) {
	i := sort.Search(len(d.keys), func(i int) bool { return d.keys[i] > va })
	if i == 0 {
		return Instruction{}, false
	}
	inst := d.insts[d.keys[i-1]]
	if !inst.Contains(va) {
		return Instruction{}, false
	}
	return inst, true
}

// Len returns the number of instructions.
func (d *Disassembly) Len() int {
	return len(d.keys)
}

// Instructions returns all instructions in ascending address order.
func (d *Disassembly) Instructions() Stream {
	out := make(Stream, len(d.keys))
	for i, va := range d.keys {
		out[i] = d.insts[va]
	}
	return out
}

type jsonInstruction struct {
	VA    uint64 `json:"va"`
	Len   int    `json:"len"`
	Bytes string `json:"bytes"`
	Op    string `json:"op"`
	Text  string `json:"text"`
	Flow  string `json:"flow"`
}

// MarshalJSON encodes the instructions in address order followed by the
// error log.
func (d *Disassembly) MarshalJSON() ([]byte, error) {
	out := struct {
		Instructions []jsonInstruction `json:"instructions"`
		Errors       []string          `json:"errors"`
	}{
		Instructions: make([]jsonInstruction, 0, len(d.keys)),
		Errors:       d.Errors(),
	}
	for _, inst := range d.Instructions() {
		out.Instructions = append(out.Instructions, jsonInstruction{
			VA:    inst.VA,
			Len:   inst.Len,
			Bytes: hex.EncodeToString(inst.Bytes),
			Op:    inst.Op,
			Text:  inst.Text,
			Flow:  inst.Flow.String(),
		})
	}
	return json.Marshal(out)
}
