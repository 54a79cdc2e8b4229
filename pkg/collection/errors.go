package collection

import (
	"errors"

	"github.com/dmitrymomot/clientsync/pkg/apierr"
)

var (
	// ErrValidation marks a mutation rejected before any optimistic change.
	ErrValidation = apierr.ErrValidation

	ErrUnauthenticated = errors.New("collection: no authenticated owner")
	ErrOwnerChanged    = errors.New("collection: owner changed, result discarded")
	ErrQueueFull       = errors.New("collection: mutation queue is full")
	ErrClosed          = errors.New("collection: cache is closed")
	ErrNilDependency   = errors.New("collection: remote and session are required")
)

func validationError(msg string) error {
	return apierr.New(apierr.ErrValidation, 0, msg)
}

// errGone is reported when a queued update or remove targets an item that
// never reached the server.
var errGone = apierr.New(apierr.ErrNotFound, 0, "item is no longer in the collection")
