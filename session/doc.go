// Package session derives session payloads from authenticated subjects and
// tracks revoked payload IDs.
//
// # Payloads
//
// A [Payload] carries only identity and its temporal window. [Issuer.Refresh]
// moves the window forward without touching the subject, after re-checking
// the subject against the account directory through a [SubjectChecker].
//
// # Architecture boundaries
//
// This package owns the [Issuer] and the [RevocationStore] implementations. It
// does NOT sign cookies (package jwt does) or decide who may log in (the
// Engine does).
//
// # What this package must NOT do
//
//   - Import goCred, jwt, or any internal package (no upward imports).
//   - Store credentials or secrets in a [Payload].
package session
