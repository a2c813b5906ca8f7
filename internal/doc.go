// Package internal groups the building blocks behind the goCred engine.
// Nothing here is part of the public API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - codes: numeric codes, opaque tokens and digest comparison
//   - delivery: bounded worker queue for asynchronous notifications
//   - flows: pure orchestration for every Engine operation
//   - limiters: the lockout guard (Redis Lua and in-memory backends)
//   - metrics: lock-free counters and latency histograms
//   - rate: fixed-window counters used for per-IP throttling
//   - stores: verification challenge records (Redis and in-memory)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goCred API.
//   - Be imported by any package outside the goCred module.
package internal
