package session

import (
	"errors"

	"github.com/dmitrymomot/clientsync/pkg/jwt"
)

var (
	// ErrInvalidToken indicates the credential cannot be decoded or carries no expiry.
	ErrInvalidToken = jwt.ErrInvalidToken

	// ErrTokenExpired indicates login was attempted with an expired credential
	ErrTokenExpired = errors.New("session.token_expired")

	// ErrRefreshFailed indicates the refresh request did not produce a usable credential
	ErrRefreshFailed = errors.New("session.refresh_failed")

	// ErrRoleChanged indicates the refreshed credential carries a different role
	ErrRoleChanged = errors.New("session.role_changed")

	// ErrIdentityChanged indicates the refreshed credential belongs to another user
	ErrIdentityChanged = errors.New("session.identity_changed")

	// ErrSessionChanged indicates the session ended while a refresh was in flight
	ErrSessionChanged = errors.New("session.changed")

	// ErrNotAuthenticated indicates there is no credential to act on
	ErrNotAuthenticated = errors.New("session.not_authenticated")

	// ErrNoRefresher indicates no refresher is configured
	ErrNoRefresher = errors.New("session.no_refresher")

	// ErrClosed indicates the manager was closed
	ErrClosed = errors.New("session.closed")
)
