// Package kvstore is the durable persistence point for session identity.
//
// The session manager writes the credential, the user id, the role and a few
// profile fields here so that a restarted client can resume the session. The
// contract is a plain string key/value store with an atomic multi-key Remove,
// used to drop the whole identity set on logout.
//
// Two implementations are provided: MemoryStore for tests and ephemeral
// clients, and RedisStore backed by github.com/redis/go-redis/v9 for clients
// that share identity across processes (kiosk fleets, server-side renderers).
package kvstore
