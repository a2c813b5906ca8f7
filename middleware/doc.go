// Package middleware guards HTTP handlers with a goCred session.
//
// [RequireSession] reads the session cookie (or an Authorization: Bearer
// header), validates it through the engine and stores the payload in the
// request context for [SessionFromContext].
//
// The package does not parse tokens or touch any store itself. Every
// decision is delegated to the engine's ValidateSession.
package middleware
