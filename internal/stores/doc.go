// Package stores persists verification challenges: one record per
// (subject, channel) pair holding the digest of an outstanding code or token,
// its expiry, attempt counter and lifecycle state. It also keeps the last
// accepted authenticator time step per subject (StepStore).
//
// # Design
//
// Every mutation (put, reserve, consume, burn) is atomic per key. The Redis
// store runs each transition as a single Lua script; the memory store
// serializes a key behind a striped mutex. Putting a record replaces the prior
// instance, so at most one challenge is active per pair. Terminal records
// (consumed, expired, locked) stay readable until their retention TTL lapses
// so replays keep failing and resend cooldowns keep working.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT mint
// codes, compare secrets, enforce lockout, or deliver anything; the flow
// functions in internal/flows do.
//
// # What this package must NOT do
//
//   - Import goCred or any sibling internal package.
//   - Store or log plaintext codes or tokens.
package stores
