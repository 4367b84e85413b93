package musicbox

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds: the balance does not cover a reveal or purchase.
	// Nothing was mutated.
	ErrInsufficientFunds = errors.New("musicbox: insufficient funds")
	// ErrForbidden: the server refused a reaction (emoji not owned).
	ErrForbidden = errors.New("musicbox: forbidden")
	// ErrInFlight: the same operation on the same entity is already running.
	ErrInFlight = errors.New("musicbox: operation already in flight")
	// ErrNoSnapshot: no valid snapshot for this box; go back through the gate.
	ErrNoSnapshot = errors.New("musicbox: no session snapshot for box")
	// ErrAlreadyDeposited: this box visit already has the user's deposit.
	ErrAlreadyDeposited = errors.New("musicbox: already deposited in this box")
	// ErrUnknownEmoji: the emoji id is not in the opened catalog.
	ErrUnknownEmoji = errors.New("musicbox: emoji not in catalog")
	// ErrClosed: the session or gate was closed.
	ErrClosed = errors.New("musicbox: closed")
)

// AuthRequiredError asks the caller to run its sign-in flow and come back to
// ReturnPath.
type AuthRequiredError struct {
	Op         string
	ReturnPath string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("musicbox: %s requires sign-in (return to %s)", e.Op, e.ReturnPath)
}

// TransientError wraps a server or network failure. No state was touched, so
// the same call can simply be repeated.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("musicbox: %s failed, retry: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is safe to retry as-is.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
