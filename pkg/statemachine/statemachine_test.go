package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrymomot/clientsync/pkg/statemachine"
)

type state string
type event string

const (
	draft     state = "draft"
	inReview  state = "in_review"
	approved  state = "approved"
	published state = "published"

	submit  event = "submit"
	approve event = "approve"
	publish event = "publish"
)

func TestMachine(t *testing.T) {
	t.Parallel()

	t.Run("basic transitions", func(t *testing.T) {
		t.Parallel()
		sm := statemachine.MustNew(draft,
			statemachine.WithTransition[state, event](draft, inReview, submit),
			statemachine.WithTransition[state, event](inReview, approved, approve),
		)
		ctx := context.Background()

		if !sm.CanFire(ctx, submit, nil) {
			t.Fatal("expected submit to be available from draft")
		}
		if sm.CanFire(ctx, approve, nil) {
			t.Fatal("approve must not be available from draft")
		}
		if err := sm.Fire(ctx, submit, nil); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := sm.Fire(ctx, approve, nil); err != nil {
			t.Fatalf("approve: %v", err)
		}
		if sm.Current() != approved {
			t.Fatalf("expected %s, got %s", approved, sm.Current())
		}
		if !sm.Is(draft, approved) {
			t.Fatal("Is should match approved")
		}

		sm.Reset()
		if sm.Current() != draft {
			t.Fatalf("expected %s after reset, got %s", draft, sm.Current())
		}
	})

	t.Run("no transition", func(t *testing.T) {
		t.Parallel()
		sm := statemachine.MustNew[state, event](draft)
		err := sm.Fire(context.Background(), publish, nil)
		if !statemachine.IsNoTransitionAvailableError(err) {
			t.Fatalf("expected no-transition error, got %v", err)
		}
		if err := sm.Fire(context.Background(), "", nil); !errors.Is(err, statemachine.ErrInvalidEvent) {
			t.Fatalf("expected ErrInvalidEvent, got %v", err)
		}
	})

	t.Run("first passing guard wins", func(t *testing.T) {
		t.Parallel()
		isAdmin := func(_ context.Context, _ state, _ event, data any) bool {
			return data == "admin"
		}
		sm := statemachine.MustNew(inReview,
			statemachine.WithTransition(inReview, published, approve, statemachine.WithGuard(isAdmin)),
			statemachine.WithTransition[state, event](inReview, approved, approve),
		)

		if err := sm.Fire(context.Background(), approve, "editor"); err != nil {
			t.Fatal(err)
		}
		if sm.Current() != approved {
			t.Fatalf("expected %s, got %s", approved, sm.Current())
		}

		sm.Reset()
		if err := sm.Fire(context.Background(), approve, "admin"); err != nil {
			t.Fatal(err)
		}
		if sm.Current() != published {
			t.Fatalf("expected %s, got %s", published, sm.Current())
		}
	})

	t.Run("rejected by guards", func(t *testing.T) {
		t.Parallel()
		never := func(context.Context, state, event, any) bool { return false }
		sm := statemachine.MustNew(draft,
			statemachine.WithTransition(draft, inReview, submit, statemachine.WithGuard(never)),
		)
		err := sm.Fire(context.Background(), submit, nil)
		if !statemachine.IsTransitionRejectedError(err) {
			t.Fatalf("expected rejection, got %v", err)
		}
	})

	t.Run("failing action aborts", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		fail := func(context.Context, state, state, event, any) error { return boom }
		sm := statemachine.MustNew(draft,
			statemachine.WithTransition(draft, inReview, submit, statemachine.WithAction(fail)),
		)
		if err := sm.Fire(context.Background(), submit, nil); !errors.Is(err, boom) {
			t.Fatalf("expected action error, got %v", err)
		}
		if sm.Current() != draft {
			t.Fatalf("state must not change, got %s", sm.Current())
		}
	})

	t.Run("hooks observe committed state", func(t *testing.T) {
		t.Parallel()
		var seen []state
		var sm *statemachine.Machine[state, event]
		sm = statemachine.MustNew(draft,
			statemachine.WithTransition[state, event](draft, inReview, submit),
			statemachine.WithHook(func(_ context.Context, from, to state, _ event) {
				seen = append(seen, from, to, sm.Current())
			}),
		)
		if err := sm.Fire(context.Background(), submit, nil); err != nil {
			t.Fatal(err)
		}
		if len(seen) != 3 || seen[0] != draft || seen[1] != inReview || seen[2] != inReview {
			t.Fatalf("unexpected hook trace %v", seen)
		}
	})
}
