package collection_test

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrymomot/clientsync/pkg/apierr"
	"github.com/dmitrymomot/clientsync/pkg/collection"
)

// fakeRemote mimics the shop API: cart adds sum quantities per product variant.
type fakeRemote struct {
	mu     sync.Mutex
	items  map[string][]collection.Item
	nextID int
	fail   map[string]error
	calls  map[string]int
	gate   chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		items: make(map[string][]collection.Item),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeRemote) seed(owner string, items ...collection.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[owner] = items
}

func (f *fakeRemote) failNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeRemote) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) stored(owner string) []collection.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items[owner])
}

func (f *fakeRemote) before(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	gate := f.gate
	err := f.fail[op]
	delete(f.fail, op)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return apierr.FromTransport(ctx.Err())
		}
	}
	return err
}

func (f *fakeRemote) List(ctx context.Context, owner string) ([]collection.Item, error) {
	if err := f.before(ctx, "list"); err != nil {
		return nil, err
	}
	return f.stored(owner), nil
}

func (f *fakeRemote) Add(ctx context.Context, owner string, item collection.Item) ([]collection.Item, error) {
	if err := f.before(ctx, "add"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := slices.Clone(f.items[owner])
	key := collection.CartKey(item)
	if i := slices.IndexFunc(items, func(it collection.Item) bool { return collection.CartKey(it) == key }); i >= 0 {
		items[i].Quantity += item.Quantity
	} else {
		f.nextID++
		item.ID = fmt.Sprintf("item-%d", f.nextID)
		items = append(items, item)
	}
	f.items[owner] = items
	return slices.Clone(items), nil
}

func (f *fakeRemote) Update(ctx context.Context, owner string, item collection.Item, quantity int) ([]collection.Item, error) {
	if err := f.before(ctx, "update"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := slices.Clone(f.items[owner])
	i := slices.IndexFunc(items, func(it collection.Item) bool { return it.ID == item.ID })
	if i < 0 {
		return nil, apierr.New(apierr.ErrNotFound, 404, "item not found")
	}
	items[i].Quantity = quantity
	f.items[owner] = items
	return slices.Clone(items), nil
}

func (f *fakeRemote) Remove(ctx context.Context, owner string, item collection.Item) ([]collection.Item, error) {
	if err := f.before(ctx, "remove"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := slices.Clone(f.items[owner])
	i := slices.IndexFunc(items, func(it collection.Item) bool { return it.ID == item.ID })
	if i < 0 {
		return nil, apierr.New(apierr.ErrNotFound, 404, "item not found")
	}
	items = slices.Delete(items, i, i+1)
	f.items[owner] = items
	return slices.Clone(items), nil
}

func (f *fakeRemote) Clear(ctx context.Context, owner string) ([]collection.Item, error) {
	if err := f.before(ctx, "clear"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[owner] = nil
	return []collection.Item{}, nil
}

type fakeSession struct {
	mu          sync.Mutex
	id          string
	epoch       uint64
	ok          bool
	invalidated []error
}

func newFakeSession(id string) *fakeSession {
	s := &fakeSession{}
	s.login(id)
	return s
}

func (s *fakeSession) login(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.ok = id, true
	s.epoch++
}

func (s *fakeSession) logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.ok = "", false
	s.epoch++
}

func (s *fakeSession) Owner() (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.epoch, s.ok
}

func (s *fakeSession) Invalidate(_ context.Context, cause error) {
	s.mu.Lock()
	s.invalidated = append(s.invalidated, cause)
	s.mu.Unlock()
	s.logout()
}

func (s *fakeSession) invalidations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invalidated)
}
