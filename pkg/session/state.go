package session

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/clientsync/pkg/logger"
	"github.com/dmitrymomot/clientsync/pkg/statemachine"
)

// State is the authentication state of the client.
type State string

const (
	Anonymous     State = "anonymous"
	Authenticated State = "authenticated"
	Refreshing    State = "refreshing"
	Expired       State = "expired"
)

type event string

const (
	eventLogin         event = "login"
	eventRefresh       event = "refresh"
	eventRefreshed     event = "refreshed"
	eventRefreshFailed event = "refresh_failed"
	eventExpire        event = "expire"
	eventClear         event = "clear"
	eventLogout        event = "logout"
)

// Reason explains a state change.
type Reason string

const (
	ReasonLogin         Reason = "login"
	ReasonRestored      Reason = "restored"
	ReasonRefresh       Reason = "refresh"
	ReasonRefreshed     Reason = "refreshed"
	ReasonRefreshFailed Reason = "refresh_failed"
	ReasonRoleChanged   Reason = "role_changed"
	ReasonInactivity    Reason = "inactivity"
	ReasonTokenExpired  Reason = "token_expired"
	ReasonUnauthorized  Reason = "unauthorized"
	ReasonLogout        Reason = "logout"
)

// restoring is passed as transition data when refreshing a credential
// recovered from the durable store.
type restoring bool

func newMachine(log *slog.Logger) *statemachine.Machine[State, event] {
	onlyRestoring := statemachine.WithGuard[State, event](func(_ context.Context, _ State, _ event, data any) bool {
		r, _ := data.(restoring)
		return bool(r)
	})

	return statemachine.MustNew(Anonymous,
		statemachine.WithTransition[State, event](Anonymous, Authenticated, eventLogin),
		statemachine.WithTransition[State, event](Authenticated, Authenticated, eventLogin),
		statemachine.WithTransition[State, event](Refreshing, Authenticated, eventLogin),
		statemachine.WithTransition[State, event](Expired, Authenticated, eventLogin),

		statemachine.WithTransition[State, event](Authenticated, Refreshing, eventRefresh),
		statemachine.WithTransition[State, event](Anonymous, Refreshing, eventRefresh, onlyRestoring),
		statemachine.WithTransition[State, event](Refreshing, Authenticated, eventRefreshed),
		statemachine.WithTransition[State, event](Refreshing, Expired, eventRefreshFailed),

		statemachine.WithTransition[State, event](Authenticated, Expired, eventExpire),
		statemachine.WithTransition[State, event](Expired, Anonymous, eventClear),

		statemachine.WithTransition[State, event](Authenticated, Anonymous, eventLogout),
		statemachine.WithTransition[State, event](Refreshing, Anonymous, eventLogout),
		statemachine.WithTransition[State, event](Expired, Anonymous, eventLogout),

		statemachine.WithHook[State, event](func(ctx context.Context, from, to State, ev event) {
			log.LogAttrs(ctx, slog.LevelInfo, "session state changed",
				logger.State(string(from), string(to)),
				logger.Event(string(ev)),
			)
		}),
	)
}
