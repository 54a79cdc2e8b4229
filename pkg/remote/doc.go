// Package remote is the request layer between the client runtime and the shop
// API.
//
// Client performs JSON requests with the session's bearer credential and
// classifies every failure into the apierr taxonomy (unauthorized, not found,
// validation, server, network). Two typed clients sit on top of it:
//
//   - SessionRefresher calls POST /session/refresh. The renewal credential
//     travels out of band in an HTTP-only cookie kept in the client's cookie
//     jar; the response carries the new bearer token.
//   - CollectionAPI implements collection.Remote for cart- and wishlist-like
//     resources: GET /{base}/{owner}, POST /{base}/{owner}/{ref},
//     PATCH /{base}/{owner}/{id}, DELETE /{base}/{owner}/{ref} and
//     DELETE /{base}/{owner}.
//
// Request timeouts come from Config.Timeout; a timeout surfaces as
// apierr.ErrNetwork and is handled like any other transient failure.
package remote
