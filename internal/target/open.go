package target

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"

	"traverse/internal/elfx"
	"traverse/internal/engine"
)

// Kind names how a file was loaded.
type Kind string

const (
	KindELF Kind = "elf"
	KindRaw Kind = "raw"
)

// File is a target loaded from disk.
type File struct {
	// Target is the loaded image. It is passed to the engine as is so the
	// optional capabilities of the concrete type stay visible.
	Target engine.Target
	Kind   Kind
	// Image is set for ELF files.
	Image *elfx.Image

	closer io.Closer
}

// Close releases the mapping of an ELF image.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Open loads path. ELF files are mapped with their segments, sections and
// symbols; anything else, or any file when raw is set, is loaded as a flat
// buffer at vma.
func Open(path string, vma uint64, raw bool) (*File, error) {
	if !raw {
		im, err := elfx.Open(path)
		if err == nil {
			return &File{Target: im, Kind: KindELF, Image: im, closer: im}, nil
		}
		var fe *elf.FormatError
		if !errors.As(err, &fe) && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &File{Target: NewBuffer(vma, data), Kind: KindRaw}, nil
}
