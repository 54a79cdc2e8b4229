// Package apierr defines the failure taxonomy shared by the request layer,
// the session manager and the collection caches.
//
// Every failure reported by the remote API is an *Error whose Kind is one of
// the Err sentinels, so callers branch with errors.Is:
//
//	switch {
//	case errors.Is(err, apierr.ErrUnauthorized): // force logout, never retry
//	case errors.Is(err, apierr.ErrNotFound):     // stale reference, fix locally
//	case apierr.IsTransient(err):                // roll back, allow retry
//	}
//
// New and Wrap build errors with an explicit kind. FromStatus maps an HTTP
// status to its kind and FromTransport classifies network and context
// failures as transient. Message extracts the user-facing text.
package apierr
