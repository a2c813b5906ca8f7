// Package audit queues security events (challenge issued, verify failed,
// session revoked, ...) and hands them to a [Sink] off the request path.
//
// The engine decides what to emit; this package only buffers and delivers.
// Events never carry codes, tokens or passwords.
package audit
