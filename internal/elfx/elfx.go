// Package elfx opens ELF binaries read-only, maps virtual addresses to file
// offsets and exposes the image as a traversal target with its sections,
// symbols and entry point.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sort"
	"syscall"

	"github.com/ianlancetaylor/demangle"

	"traverse/internal/engine"
)

type Image struct {
	Path     string
	File     *elf.File
	All      []byte
	Loads    []Seg
	Sections []Section
	Text     Section
	Syms     []Sym
	Entry    uint64

	byName map[string]int
	byAddr []int
	f      *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Sym is a defined symbol from .dynsym or .symtab.
type Sym struct {
	Name      string
	Demangled string
	Addr      uint64
	Size      uint64
	Func      bool
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, Entry: f.Entry, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		if s.Type == elf.SHT_NULL || s.Type == elf.SHT_NOBITS || s.Addr == 0 || s.Size == 0 {
			continue
		}
		sec := Section{s.Name, s.Addr, s.Offset, s.Size}
		im.Sections = append(im.Sections, sec)
		if s.Name == ".text" {
			im.Text = sec
		}
	}

	// Fallback if stripped of section headers.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}

	im.loadSymbols()
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// segment returns the PT_LOAD segment backing va.
func (im *Image) segment(va uint64) (Seg, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va-l.Vaddr < l.Filesz {
			return l, true
		}
	}
	return Seg{}, false
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	l, ok := im.segment(va)
	if !ok {
		return 0, false
	}
	return l.Off + (va - l.Vaddr), true
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) || end < off {
		return nil, false
	}
	return im.All[off:end:end], true
}

// Read implements engine.Target. The result is clipped to the end of the
// segment containing va.
func (im *Image) Read(va uint64, n int) ([]byte, error) {
	l, ok := im.segment(va)
	if !ok {
		return nil, &engine.AddrError{Kind: engine.ErrOutOfRange, VA: va, Err: errors.New("not in a loaded segment")}
	}
	if n < 0 {
		n = 0
	}
	if avail := l.Filesz - (va - l.Vaddr); uint64(n) > avail {
		n = int(avail)
	}
	b, ok := im.SliceVA(va, uint64(n))
	if !ok {
		return nil, &engine.AddrError{Kind: engine.ErrOutOfRange, VA: va, Err: errors.New("segment extends beyond file")}
	}
	return b, nil
}

// Contains implements engine.Target.
func (im *Image) Contains(va uint64) bool {
	_, ok := im.segment(va)
	return ok
}

// EntryPoints implements engine.EntryPointer with the header entry.
func (im *Image) EntryPoints() []uint64 {
	if im.Entry == 0 || !im.Contains(im.Entry) {
		return nil
	}
	return []uint64{im.Entry}
}

// SectionBounds implements engine.SectionLookup.
func (im *Image) SectionBounds(name string) (uint64, uint64, bool) {
	for _, s := range im.Sections {
		if s.Name == name {
			return s.VA, s.Size, true
		}
	}
	if name == im.Text.Name && im.Text.Size != 0 {
		return im.Text.VA, im.Text.Size, true
	}
	return 0, 0, false
}

// SymbolAddress implements engine.SymbolLookup. Both raw and demangled
// names are accepted.
func (im *Image) SymbolAddress(name string) (uint64, bool) {
	i, ok := im.byName[name]
	if !ok {
		return 0, false
	}
	return im.Syms[i].Addr, true
}

// SymbolAt implements engine.SymbolNamer. It returns the closest symbol at
// or below va, provided va lies inside the symbol when its size is known.
func (im *Image) SymbolAt(va uint64) (string, uint64, bool) {
	i := sort.Search(len(im.byAddr), func(i int) bool { return im.Syms[im.byAddr[i]].Addr > va })
	if i == 0 {
		return "", 0, false
	}
	s := im.Syms[im.byAddr[i-1]]
	if s.Size != 0 && va-s.Addr >= s.Size {
		return "", 0, false
	}
	return s.Name, s.Addr, true
}

// loadSymbols reads .dynsym and .symtab, keeping defined symbols that
// point into a loaded segment. The first definition of a name wins.
func (im *Image) loadSymbols() {
	if im.File == nil {
		return
	}
	im.byName = make(map[string]int)

	var all []elf.Symbol
	if dyn, err := im.File.DynamicSymbols(); err == nil {
		all = append(all, dyn...)
	}
	// .symtab is absent from stripped binaries
	if st, err := im.File.Symbols(); err == nil {
		all = append(all, st...)
	}

	for _, s := range all {
		if s.Value == 0 || s.Name == "" || s.Section == elf.SHN_UNDEF {
			continue
		}
		typ := elf.ST_TYPE(s.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_OBJECT && typ != elf.STT_NOTYPE {
			continue
		}
		if !im.Contains(s.Value) {
			continue
		}
		if _, dup := im.byName[s.Name]; dup {
			continue
		}
		sym := Sym{
			Name:      s.Name,
			Demangled: demangle.Filter(s.Name, demangle.NoClones),
			Addr:      s.Value,
			Size:      s.Size,
			Func:      typ == elf.STT_FUNC,
		}
		im.Syms = append(im.Syms, sym)
		idx := len(im.Syms) - 1
		im.byName[sym.Name] = idx
		if sym.Demangled != sym.Name {
			if _, dup := im.byName[sym.Demangled]; !dup {
				im.byName[sym.Demangled] = idx
			}
		}
		im.byAddr = append(im.byAddr, idx)
	}

	sort.SliceStable(im.byAddr, func(a, b int) bool {
		return im.Syms[im.byAddr[a]].Addr < im.Syms[im.byAddr[b]].Addr
	})
}
