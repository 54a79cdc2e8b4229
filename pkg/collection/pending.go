package collection

import "context"

// Status describes how a mutation resolved.
type Status int

const (
	// StatusOK means the server confirmed the mutation.
	StatusOK Status = iota
	// StatusRolledBack means the server rejected the mutation and the
	// optimistic change was reverted.
	StatusRolledBack
	// StatusDropped means the target no longer exists on the server and was
	// removed from the view.
	StatusDropped
	// StatusRejected means the mutation never left the client.
	StatusRejected
	// StatusDiscarded means the owner changed while the call was in flight.
	StatusDiscarded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRolledBack:
		return "rolled_back"
	case StatusDropped:
		return "dropped"
	case StatusRejected:
		return "rejected"
	case StatusDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Outcome is the resolution of a mutation.
type Outcome[T any] struct {
	Status   Status
	Snapshot Snapshot[T]
	// Reason is the user-facing failure message, empty on success.
	Reason string
}

// Pending is the future returned by Mutate.
type Pending[T any] struct {
	done    chan struct{}
	outcome Outcome[T]
	err     error
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{done: make(chan struct{})}
}

func resolved[T any](outcome Outcome[T], err error) *Pending[T] {
	p := newPending[T]()
	p.resolve(outcome, err)
	return p
}

// Await blocks until the mutation resolves or ctx is done. Cancelling ctx
// does not cancel the mutation.
func (p *Pending[T]) Await(ctx context.Context) (Outcome[T], error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return Outcome[T]{}, ctx.Err()
	}
}

// Done is closed once the outcome is available.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// resolve must be called exactly once.
func (p *Pending[T]) resolve(outcome Outcome[T], err error) {
	p.outcome, p.err = outcome, err
	close(p.done)
}
