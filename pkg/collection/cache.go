package collection

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/clientsync/pkg/apierr"
	"github.com/dmitrymomot/clientsync/pkg/broadcast"
	"github.com/dmitrymomot/clientsync/pkg/logger"
)

// Snapshot is a point-in-time view of a collection.
type Snapshot[T any] struct {
	Owner     string
	Items     []T
	Version   uint64 // increases on every visible change
	Pending   int    // mutations queued or in flight
	Stale     bool   // not yet confirmed by a fetch for this owner
	LastError string // message of the last failed mutation or fetch
}

type task[T any] struct {
	ctx     context.Context
	op      Op[T]
	key     string
	epoch   uint64
	pending *Pending[T]
}

// Cache is an optimistic, owner-scoped mirror of a remote collection.
//
// Mutations are applied to the visible snapshot immediately and sent to the
// server one at a time in submission order. The server's response becomes
// the new confirmed state; a failure restores the confirmed state with any
// still-queued mutations re-applied on top.
type Cache[T any] struct {
	policy  Policy[T]
	remote  Remote[T]
	session Session
	cfg     Config
	logger  *slog.Logger

	mu        sync.Mutex
	owner     string
	epoch     uint64
	hasOwner  bool
	confirmed []T
	view      []T
	version   uint64
	revision  uint64
	stale     bool
	lastErr   string
	queue     []*task[T]
	running   *task[T]
	closed    bool

	wake    chan struct{}
	fetch   singleflight.Group
	changes *broadcast.MemoryBroadcaster[Snapshot[T]]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache and starts its mutation worker.
func New[T any](policy Policy[T], remote Remote[T], session Session, opts ...Option) (*Cache[T], error) {
	if remote == nil || session == nil {
		return nil, ErrNilDependency
	}
	if policy.Key == nil {
		return nil, errors.New("collection: policy key function is required")
	}

	o := options{cfg: DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[T]{
		policy:  policy,
		remote:  remote,
		session: session,
		cfg:     o.cfg.withDefaults(),
		logger:  o.logger.With(logger.Component(policy.Name)),
		stale:   true,
		wake:    make(chan struct{}, 1),
		changes: broadcast.NewMemoryBroadcaster[Snapshot[T]](broadcast.WithOverflow(broadcast.DropOldest)),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.run()
	return c, nil
}

// NewCart creates a cart cache.
func NewCart(remote Remote[Item], session Session, opts ...Option) (*Cache[Item], error) {
	return New(CartPolicy(), remote, session, opts...)
}

// NewWishlist creates a wishlist cache.
func NewWishlist(remote Remote[Item], session Session, opts ...Option) (*Cache[Item], error) {
	return New(WishlistPolicy(), remote, session, opts...)
}

// Snapshot returns the current view without side effects.
func (c *Cache[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Read returns the current view and starts a background fetch when the view
// has not been confirmed for the current owner.
func (c *Cache[T]) Read(ctx context.Context) Snapshot[T] {
	if _, _, err := c.syncOwner(ctx); err == nil {
		c.mu.Lock()
		stale := c.stale
		c.mu.Unlock()
		if stale {
			c.revalidateAsync()
		}
	}
	return c.Snapshot()
}

// Subscribe streams snapshots until ctx is done. Every new subscriber
// triggers a background fetch.
func (c *Cache[T]) Subscribe(ctx context.Context) broadcast.Subscriber[Snapshot[T]] {
	sub := c.changes.Subscribe(ctx)
	if _, _, err := c.syncOwner(ctx); err == nil {
		c.revalidateAsync()
	}
	return sub
}

// Revalidate fetches the collection and replaces the confirmed state, unless
// a mutation is queued or completed while the fetch was in flight. Concurrent
// calls for the same owner share one request.
func (c *Cache[T]) Revalidate(ctx context.Context) error {
	owner, epoch, err := c.syncOwner(ctx)
	if err != nil {
		return err
	}
	key := owner + "/" + strconv.FormatUint(epoch, 10)
	_, err, _ = c.fetch.Do(key, func() (any, error) {
		return nil, c.revalidate(ctx, owner, epoch)
	})
	return err
}

// Mutate applies op optimistically and queues it for the server.
func (c *Cache[T]) Mutate(ctx context.Context, op Op[T]) *Pending[T] {
	_, epoch, err := c.syncOwner(ctx)
	if err != nil {
		return resolved(Outcome[T]{Status: StatusRejected, Snapshot: c.Snapshot(), Reason: apierr.Message(err)}, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return resolved(Outcome[T]{Status: StatusRejected, Reason: apierr.Message(ErrClosed)}, ErrClosed)
	}
	if epoch != c.epoch {
		c.mu.Unlock()
		return resolved(Outcome[T]{Status: StatusDiscarded, Snapshot: c.Snapshot()}, ErrOwnerChanged)
	}

	op, key, err := c.policy.normalize(c.view, op)
	if err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.LogAttrs(ctx, slog.LevelDebug, "mutation rejected",
			logger.Operation(string(op.Kind)), logger.Error(err))
		return resolved(Outcome[T]{Status: StatusRejected, Snapshot: snap, Reason: apierr.Message(err)}, err)
	}

	view, changed := c.policy.apply(c.view, op, key)
	if !changed && op.Kind == OpAdd {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return resolved(Outcome[T]{Status: StatusOK, Snapshot: snap}, nil)
	}
	if len(c.queue) >= c.cfg.QueueSize {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return resolved(Outcome[T]{Status: StatusRejected, Snapshot: snap, Reason: apierr.Message(ErrQueueFull)}, ErrQueueFull)
	}

	t := &task[T]{
		ctx:     context.WithoutCancel(ctx),
		op:      op,
		key:     key,
		epoch:   epoch,
		pending: newPending[T](),
	}
	c.queue = append(c.queue, t)
	c.view = view
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return t.pending
}

// Apply is Mutate followed by Await.
func (c *Cache[T]) Apply(ctx context.Context, op Op[T]) (Outcome[T], error) {
	return c.Mutate(ctx, op).Await(ctx)
}

func (c *Cache[T]) Add(ctx context.Context, item T) *Pending[T] {
	return c.Mutate(ctx, AddItem(item))
}

func (c *Cache[T]) UpdateQuantity(ctx context.Context, ref string, quantity int) *Pending[T] {
	return c.Mutate(ctx, SetQuantity[T](ref, quantity))
}

func (c *Cache[T]) Remove(ctx context.Context, ref string) *Pending[T] {
	return c.Mutate(ctx, RemoveItem[T](ref))
}

func (c *Cache[T]) Clear(ctx context.Context) *Pending[T] {
	return c.Mutate(ctx, ClearAll[T]())
}

// Reset forgets the current owner's data. Queued mutations resolve with
// ErrOwnerChanged and an in-flight result is discarded.
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	if !c.hasOwner {
		c.mu.Unlock()
		return
	}
	c.resetLocked("", 0, false)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

// Close stops the worker. Queued mutations resolve with ErrClosed.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	queued := c.detachQueueLocked()
	c.mu.Unlock()

	for _, t := range queued {
		t.pending.resolve(Outcome[T]{Status: StatusRejected, Reason: apierr.Message(ErrClosed)}, ErrClosed)
	}
	c.cancel()
	c.wg.Wait()
	return c.changes.Close()
}

func (c *Cache[T]) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}
		for {
			t := c.next()
			if t == nil {
				break
			}
			c.execute(t)
		}
	}
}

func (c *Cache[T]) next() *task[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.queue) == 0 {
		return nil
	}
	c.running = c.queue[0]
	return c.running
}

func (c *Cache[T]) execute(t *task[T]) {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	c.mu.Lock()
	owner := c.owner
	target := -1
	if t.op.Kind == OpUpdateQuantity || t.op.Kind == OpRemove {
		target = c.policy.indexOfKey(c.confirmed, t.key)
	}
	var item T
	if target >= 0 {
		item = c.confirmed[target]
	}
	c.mu.Unlock()

	var (
		items []T
		err   error
		start = time.Now()
	)
	switch t.op.Kind {
	case OpAdd:
		items, err = c.remote.Add(ctx, owner, t.op.Item)
	case OpUpdateQuantity:
		if target < 0 {
			err = errGone
			break
		}
		items, err = c.remote.Update(ctx, owner, item, t.op.Quantity)
	case OpRemove:
		if target < 0 {
			err = errGone
			break
		}
		items, err = c.remote.Remove(ctx, owner, item)
	case OpClear:
		items, err = c.remote.Clear(ctx, owner)
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "mutation completed",
		logger.Owner(owner),
		logger.Operation(string(t.op.Kind)),
		logger.Duration(time.Since(start)),
		logger.Error(err),
	)
	c.finish(t, items, err)
}

func (c *Cache[T]) finish(t *task[T], items []T, err error) {
	id, epoch, ok := c.session.Owner()

	c.mu.Lock()
	if c.running == t {
		c.running = nil
	}
	if len(c.queue) > 0 && c.queue[0] == t {
		c.queue = c.queue[1:]
	}

	if c.closed {
		c.mu.Unlock()
		t.pending.resolve(Outcome[T]{Status: StatusDiscarded, Reason: apierr.Message(ErrClosed)}, ErrClosed)
		return
	}
	if !ok || epoch != t.epoch || id != c.owner || !c.hasOwner || c.epoch != t.epoch {
		c.mu.Unlock()
		c.logger.LogAttrs(t.ctx, slog.LevelInfo, "discarding result for previous owner",
			logger.Operation(string(t.op.Kind)))
		_, _, _ = c.syncOwner(t.ctx)
		t.pending.resolve(Outcome[T]{Status: StatusDiscarded, Snapshot: c.Snapshot()}, ErrOwnerChanged)
		return
	}

	var (
		outcome      Outcome[T]
		resultErr    error
		invalidate   bool
		refetchDrops bool
	)
	switch {
	case err == nil:
		if items == nil {
			items = []T{}
		}
		c.confirmed = items
		c.revision++
		c.lastErr = ""
		outcome.Status = StatusOK

	case errors.Is(err, apierr.ErrNotFound):
		if i := c.policy.indexOfKey(c.confirmed, t.key); i >= 0 {
			c.confirmed = slices.Delete(slices.Clone(c.confirmed), i, i+1)
			c.revision++
		}
		outcome.Status = StatusDropped
		outcome.Reason = apierr.Message(err)
		resultErr = err
		refetchDrops = true

	case errors.Is(err, apierr.ErrUnauthorized):
		outcome.Status = StatusRolledBack
		outcome.Reason = apierr.Message(err)
		c.lastErr = outcome.Reason
		resultErr = err
		invalidate = true

	default:
		outcome.Status = StatusRolledBack
		outcome.Reason = apierr.Message(err)
		c.lastErr = outcome.Reason
		resultErr = err
	}

	c.rebuildLocked()
	outcome.Snapshot = c.snapshotLocked()
	idle := len(c.queue) == 0
	c.mu.Unlock()

	c.publish(outcome.Snapshot)
	if resultErr != nil {
		c.logger.LogAttrs(t.ctx, slog.LevelWarn, "mutation failed",
			logger.Owner(id),
			logger.Operation(string(t.op.Kind)),
			slog.String("status", outcome.Status.String()),
			logger.Error(resultErr),
		)
	}
	t.pending.resolve(outcome, resultErr)

	if invalidate {
		c.session.Invalidate(t.ctx, err)
		return
	}
	if idle && (c.cfg.RevalidateAfterMutation || refetchDrops) {
		c.revalidateAsync()
	}
}

func (c *Cache[T]) revalidate(ctx context.Context, owner string, epoch uint64) error {
	c.mu.Lock()
	rev := c.revision
	c.mu.Unlock()

	items, err := c.remote.List(ctx, owner)
	if err != nil {
		c.mu.Lock()
		current := c.hasOwner && c.epoch == epoch
		if current {
			c.lastErr = apierr.Message(err)
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.LogAttrs(ctx, slog.LevelWarn, "fetch failed", logger.Owner(owner), logger.Error(err))
		if current {
			c.publish(snap)
			if errors.Is(err, apierr.ErrUnauthorized) {
				c.session.Invalidate(ctx, err)
			}
		}
		return err
	}
	if items == nil {
		items = []T{}
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.hasOwner || c.epoch != epoch:
		c.mu.Unlock()
		return ErrOwnerChanged
	case c.revision != rev || len(c.queue) > 0 || c.running != nil:
		// superseded by a mutation
		c.mu.Unlock()
		return nil
	}
	changed := c.stale || !reflect.DeepEqual(c.confirmed, items)
	c.stale = false
	if !changed {
		c.mu.Unlock()
		return nil
	}
	c.confirmed = items
	c.rebuildLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

func (c *Cache[T]) revalidateAsync() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RevalidateTimeout)
		defer cancel()
		_ = c.Revalidate(ctx)
	}()
}

// syncOwner aligns the cache with the session's current owner.
func (c *Cache[T]) syncOwner(ctx context.Context) (string, uint64, error) {
	id, epoch, ok := c.session.Owner()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", 0, ErrClosed
	}
	if !ok {
		if c.hasOwner {
			c.resetLocked("", 0, false)
			snap := c.snapshotLocked()
			c.mu.Unlock()
			c.publish(snap)
			return "", 0, ErrUnauthenticated
		}
		c.mu.Unlock()
		return "", 0, ErrUnauthenticated
	}
	if c.hasOwner && c.owner == id && c.epoch == epoch {
		c.mu.Unlock()
		return id, epoch, nil
	}

	c.resetLocked(id, epoch, true)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.LogAttrs(ctx, slog.LevelDebug, "owner changed", logger.Owner(id))
	c.publish(snap)
	return id, epoch, nil
}

// resetLocked switches owner and drops everything that belonged to the
// previous one. The running task, if any, resolves itself on completion.
func (c *Cache[T]) resetLocked(owner string, epoch uint64, hasOwner bool) {
	queued := c.detachQueueLocked()
	for _, t := range queued {
		t.pending.resolve(Outcome[T]{Status: StatusDiscarded}, ErrOwnerChanged)
	}
	c.owner, c.epoch, c.hasOwner = owner, epoch, hasOwner
	c.confirmed = nil
	c.view = nil
	c.stale = true
	c.lastErr = ""
	c.revision++
	c.version++
}

// detachQueueLocked empties the queue and returns the tasks that are not
// currently executing.
func (c *Cache[T]) detachQueueLocked() []*task[T] {
	var out []*task[T]
	for _, t := range c.queue {
		if t != c.running {
			out = append(out, t)
		}
	}
	c.queue = nil
	return out
}

// rebuildLocked recomputes the view as confirmed plus queued mutations.
func (c *Cache[T]) rebuildLocked() {
	view := slices.Clone(c.confirmed)
	for _, t := range c.queue {
		view, _ = c.policy.apply(view, t.op, t.key)
	}
	c.view = view
	c.version++
}

func (c *Cache[T]) snapshotLocked() Snapshot[T] {
	items := slices.Clone(c.view)
	if items == nil {
		items = []T{}
	}
	return Snapshot[T]{
		Owner:     c.owner,
		Items:     items,
		Version:   c.version,
		Pending:   len(c.queue),
		Stale:     c.stale,
		LastError: c.lastErr,
	}
}

func (c *Cache[T]) publish(snap Snapshot[T]) {
	_ = c.changes.Broadcast(c.ctx, snap)
}
