package jwt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken reports a credential that cannot be decoded.
	ErrInvalidToken = errors.New("jwt: invalid token")

	// ErrMissingExpiry reports a decodable token without an exp claim.
	// It matches ErrInvalidToken with errors.Is.
	ErrMissingExpiry = fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
)
