// Package session manages the client-side authentication lifecycle.
//
// A Manager owns the bearer credential and moves between four states:
//
//	Anonymous ──login──▶ Authenticated ──refresh──▶ Refreshing
//	    ▲                   │    ▲                      │
//	    │                expire  └──────refreshed───────┤
//	    │                   ▼                           │
//	    └──────clear────── Expired ◀───refresh_failed───┘
//
// Logout returns to Anonymous from any state and is idempotent. Every path
// into Anonymous removes the durable identity keys (token, user id, role,
// profile fields, activity timestamp) as a single store operation and emits
// a StateChange carrying the login redirect.
//
// # Periodic check
//
// While a session is active a background task calls Check every
// CheckInterval. Check compares wall-clock time against the last recorded
// activity and the token's embedded expiry and ends the session when either
// is exceeded; otherwise it refreshes a credential older than
// RefreshInterval. The task is cancelled when the session ends. Tests drive
// Check directly together with WithClock.
//
// # Activity
//
// Touch records one of the recognized interaction signals. Activity is
// persisted at most once per ActivityUpdateThreshold so that a restarted
// client still applies the inactivity timeout.
//
// # Refresh
//
// Refresh is safe to call concurrently: callers share the in-flight request.
// A failed refresh surfaces the server message in the StateChange and ends
// the session. A refreshed credential for another user or with a different
// role ends the session with ErrIdentityChanged or ErrRoleChanged.
//
// # Usage
//
//	mgr := session.NewFromConfig(cfg,
//		session.WithStore(store),
//		session.WithRefresher(remote.NewSessionRefresher(client)),
//	)
//	defer mgr.Close()
//
//	if err := mgr.Start(ctx); err != nil {
//		return err
//	}
//	if err := mgr.Login(ctx, token); errors.Is(err, session.ErrInvalidToken) {
//		// malformed credential
//	}
//
// Manager satisfies the collection.Session and remote.TokenSource contracts
// through Owner, Invalidate and Token.
package session
