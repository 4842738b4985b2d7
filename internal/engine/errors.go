package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode marks bytes the decoder could not turn into an instruction.
	ErrDecode = errors.New("decode")
	// ErrOutOfRange marks reads outside the target.
	ErrOutOfRange = errors.New("bounds")
	// ErrInvalidTarget marks a strategy whose target capability is missing.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidInstruction marks a decoded instruction flagged invalid.
	ErrInvalidInstruction = errors.New("invalid instruction")
	// ErrMaxInstructions marks a traversal stopped by the instruction limit.
	ErrMaxInstructions = errors.New("max instructions")
	// ErrUnknownStrategy is returned for a strategy name that does not parse.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// AddrError is a failure tied to one address.
type AddrError struct {
	Kind error
	VA   uint64
	Err  error
}

func (e *AddrError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %#x", e.Kind, e.VA)
	}
	return fmt.Sprintf("%v: %#x: %v", e.Kind, e.VA, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *AddrError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// addrError classifies err for va. Errors that already carry a kind keep
// it; anything else is a decode failure.
func addrError(va uint64, err error) *AddrError {
	var ae *AddrError
	if errors.As(err, &ae) {
		return ae
	}
	kind := ErrDecode
	if errors.Is(err, ErrOutOfRange) {
		kind = ErrOutOfRange
	}
	return &AddrError{Kind: kind, VA: va, Err: stripKind(err, kind)}
}

// stripKind drops a cause that is the bare kind sentinel.
func stripKind(err, kind error) error {
	if err == kind {
		return nil
	}
	return err
}
