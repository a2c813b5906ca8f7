// Package limiters implements the lockout guard: a per (subject, action class)
// failure ledger that locks the pair once too many failures land inside one
// window.
//
// # Backends
//
//   - [RedisGuard] evaluates every decision in a single Lua script.
//   - [MemoryGuard] keeps ledgers in a go-cache map behind striped mutexes.
//
// Both apply the same fixed-window policy: failures count from the first
// failure in the window, reaching MaxFailures sets locked-until to
// now + LockDuration, and a success, an elapsed lock, or an elapsed window
// clears the ledger.
//
// # Architecture boundaries
//
// Policy thresholds come from the caller per call. The guard only counts; the
// flow functions decide what a locked decision means for a challenge.
//
// # What this package must NOT do
//
//   - Import goCred or any sibling internal package.
//   - Compare secrets or inspect challenge records.
package limiters
