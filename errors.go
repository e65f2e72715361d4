package machgen

import (
	"errors"
	"fmt"

	"github.com/joelreymont/machgen/ir"
)

// ErrUnsupportedArch is returned by Compile when target.Arch names an
// architecture this build has no backend registered for.
var ErrUnsupportedArch = errors.New("machgen: unsupported target architecture")

// VerificationError wraps an *ir.VerifierError surfaced from the IR
// verifier, so callers can errors.As for it without importing ir
// themselves.
type VerificationError struct {
	Err *ir.VerifierError
}

func (e *VerificationError) Error() string { return e.Err.Error() }
func (e *VerificationError) Unwrap() error { return e.Err }

// LegalizationError wraps the legalizer's error, reported when an
// instruction's (opcode, type) pair has no legalization rule on the
// chosen target.
type LegalizationError struct {
	Opcode ir.Opcode
	Type   ir.Type
	err    error
}

func (e *LegalizationError) Error() string { return e.err.Error() }
func (e *LegalizationError) Unwrap() error { return e.err }

// EncodingError reports that a backend's Encode pass failed, most often
// an instruction the encoder doesn't have a case for (a bug in this
// module, not a caller mistake).
type EncodingError struct {
	Arch Arch
	err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("machgen: %s: encode: %v", e.Arch, e.err)
}
func (e *EncodingError) Unwrap() error { return e.err }

// Diagnostics is a list of ir.Diagnostic with a one-per-line String
// form. Compile neither fills nor returns one: verifier findings reach a
// caller only on failure, inside a VerificationError's
// *ir.VerifierError.
type Diagnostics struct {
	Entries []ir.Diagnostic
}

func (d Diagnostics) String() string {
	s := ""
	for i, e := range d.Entries {
		if i > 0 {
			s += "\n"
		}
		s += e.String()
	}
	return s
}
