// Package rate provides fixed-window request counters used to throttle the
// unauthenticated HTTP endpoints per client address.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional PEXPIRE on first hit. Keys are
// "<prefix>:<bucket>:<key>", so each endpoint family counts separately.
//
// # What this package must NOT do
//
//   - Implement per-subject lockout (that lives in internal/limiters).
//   - Be imported outside the goCred module.
package rate
