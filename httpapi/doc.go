// Package httpapi is the reference JSON surface over a goCred engine,
// routed with chi.
//
// Every response is an envelope:
//
//	{"ok": true, "data": {...}}
//	{"ok": false, "error": {"code": "...", "message": "..."}, "retry_after": 30}
//
// Error messages come from goCred.PublicMessage, so a wrong code, an expired
// code and a missing challenge read the same to the caller. Unauthenticated
// endpoints are throttled per client address before they reach the engine.
package httpapi
