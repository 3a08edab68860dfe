// Package diag defines the positioned error values every compiler pass
// returns, and the --traceback boundary (SPEC_FULL.md's ambient error
// handling) where the driver decides whether to show a Go stack trace
// or just the user-facing message. Grounded on original_source's
// util.Error (imported by every pass as `from util import Error`) and
// go/scanner.Error's Pos-plus-message shape.
package diag

import (
	"fmt"

	"github.com/runa-lang/runac/token"

	"golang.org/x/xerrors"
)

// Error is a single positioned compiler diagnostic: a type mismatch, an
// undefined name, an unresolved call target, and so on.
type Error struct {
	Pos token.Pos
	Msg string
}

func (e *Error) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// Errorf builds an Error positioned at pos, wrapping it with xerrors so
// --traceback can recover a frame even across a returned interface.
func Errorf(pos token.Pos, format string, args ...interface{}) error {
	return xerrors.Errorf("%w", &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// ParseError is a positioned lexical or grammatical failure, a type
// distinct from Error. The driver's report prints every error's message
// the same way, with no kind label.
type ParseError struct {
	Pos token.Pos
	Msg string
}

func (e *ParseError) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// AsError unwraps err looking for a *diag.Error, the way errors.As does,
// but also peels back an xerrors.Errorf("%w", ...) wrapper produced by
// Errorf.
func AsError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
