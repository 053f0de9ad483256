package session

import (
	"time"

	"github.com/jrsteele09/go-rail-auth/authmodel"
)

// Event is one of Start, Success, Failure, Logout, ClearError or SetLoading.
type Event interface {
	event()
}

// Start marks an operation in flight.
type Start struct{}

// Success establishes an authenticated session from an auth response.
type Success struct {
	Auth authmodel.AuthResponse
	At   time.Time
}

// Failure clears the session and records Message.
type Failure struct {
	Message string
}

// Logout clears the session without an error.
type Logout struct{}

type ClearError struct{}

// SetLoading settles (or re-opens) the loading flag without touching the
// rest of the session.
type SetLoading struct {
	Loading bool
}

func (Start) event()      {}
func (Success) event()    {}
func (Failure) event()    {}
func (Logout) event()     {}
func (ClearError) event() {}
func (SetLoading) event() {}

// clearsOrSetsTokens reports whether applying ev must be mirrored in the
// credential store.
func clearsOrSetsTokens(ev Event) bool {
	switch ev.(type) {
	case Success, Failure, Logout:
		return true
	default:
		return false
	}
}
