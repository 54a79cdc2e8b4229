package collection

import "context"

// Policy abstracts the item type and the collection semantics a Cache works with.
type Policy[T any] struct {
	// Name is used in logs and errors ("cart", "wishlist").
	Name string

	// Key returns the uniqueness key of an entry.
	Key func(T) string

	// ID returns the server-assigned identifier, empty before confirmation.
	ID func(T) string

	// Ref returns the product reference used in remote add/remove paths.
	Ref func(T) string

	// Prepare validates and normalises an item passed to Add.
	Prepare func(T) (T, error)

	// Merge folds an added item into an existing entry with the same key.
	// Returning false makes the add a no-op.
	Merge func(existing, added T) (T, bool)

	// SetQuantity returns a copy of the entry with a new quantity. Nil means
	// the collection does not support quantity updates.
	SetQuantity func(T, int) T
}

// Remote is the remote collection API. Every call returns the authoritative
// collection after the operation.
type Remote[T any] interface {
	List(ctx context.Context, owner string) ([]T, error)
	Add(ctx context.Context, owner string, item T) ([]T, error)
	Update(ctx context.Context, owner string, item T, quantity int) ([]T, error)
	Remove(ctx context.Context, owner string, item T) ([]T, error)
	Clear(ctx context.Context, owner string) ([]T, error)
}

// Session is the view of the session manager a Cache needs.
type Session interface {
	// Owner returns the authenticated user id and an epoch that changes on
	// every login and logout. ok is false when no user is authenticated.
	Owner() (id string, epoch uint64, ok bool)

	// Invalidate reports that the server rejected the session's credentials.
	Invalidate(ctx context.Context, cause error)
}
