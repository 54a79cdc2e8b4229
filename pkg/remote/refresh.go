package remote

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/clientsync/pkg/apierr"
)

// SessionRefresher renews the bearer credential through the refresh endpoint.
type SessionRefresher struct {
	client *Client
}

// NewSessionRefresher returns a refresher bound to client.
func NewSessionRefresher(client *Client) *SessionRefresher {
	return &SessionRefresher{client: client}
}

// Refresh exchanges the renewal cookie for a new token. The current bearer
// token is not sent; it may already be expired.
func (r *SessionRefresher) Refresh(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := r.client.do(ctx, http.MethodPost, r.client.cfg.RefreshPath, nil, &resp, false); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", apierr.New(apierr.ErrServer, http.StatusOK, "refresh response did not include a token")
	}
	return resp.Token, nil
}
