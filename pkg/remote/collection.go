package remote

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/clientsync/pkg/collection"
)

// CollectionAPI implements collection.Remote over HTTP.
type CollectionAPI[T any] struct {
	client *Client
	base   string
	ref    func(T) string
	id     func(T) string
}

// NewCollectionAPI binds a remote collection rooted at base. ref extracts
// the product reference used when adding, id the server item id used when
// updating or removing a single line.
func NewCollectionAPI[T any](client *Client, base string, ref, id func(T) string) *CollectionAPI[T] {
	return &CollectionAPI[T]{client: client, base: base, ref: ref, id: id}
}

// NewItemAPI binds a collection of collection.Item entries.
func NewItemAPI(client *Client, base string) *CollectionAPI[collection.Item] {
	return NewCollectionAPI(client, base,
		func(it collection.Item) string { return it.ProductRef },
		func(it collection.Item) string { return it.ID },
	)
}

type itemsEnvelope[T any] struct {
	Items []T `json:"items"`
}

type quantityPatch struct {
	Quantity int `json:"quantity"`
}

func (a *CollectionAPI[T]) List(ctx context.Context, owner string) ([]T, error) {
	return a.call(ctx, http.MethodGet, a.base+segment(owner), nil)
}

func (a *CollectionAPI[T]) Add(ctx context.Context, owner string, item T) ([]T, error) {
	return a.call(ctx, http.MethodPost, a.base+segment(owner)+segment(a.ref(item)), item)
}

func (a *CollectionAPI[T]) Update(ctx context.Context, owner string, item T, quantity int) ([]T, error) {
	return a.call(ctx, http.MethodPatch, a.base+segment(owner)+segment(a.id(item)), quantityPatch{Quantity: quantity})
}

// Remove deletes exactly one line. Variants of the same product are
// distinct lines, so the path carries the item id, not the product reference.
func (a *CollectionAPI[T]) Remove(ctx context.Context, owner string, item T) ([]T, error) {
	return a.call(ctx, http.MethodDelete, a.base+segment(owner)+segment(a.id(item)), nil)
}

func (a *CollectionAPI[T]) Clear(ctx context.Context, owner string) ([]T, error) {
	return a.call(ctx, http.MethodDelete, a.base+segment(owner), nil)
}

func (a *CollectionAPI[T]) call(ctx context.Context, method, path string, in any) ([]T, error) {
	var out itemsEnvelope[T]
	if err := a.client.Do(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []T{}
	}
	return out.Items, nil
}

var _ collection.Remote[collection.Item] = (*CollectionAPI[collection.Item])(nil)
