// Package goCred implements the credential lifecycle of a user
// authentication service: password policy, one-time code and reset-token
// challenges, lockout, password change and reset, and session issuance.
//
// # Quick start
//
//	engine, err := goCred.New().
//	    WithConfig(cfg).
//	    WithRedis(rdb).
//	    WithDirectory(dir).
//	    WithNotifier(notifier).
//	    WithLogger(logger).
//	    Build()
//	if err != nil { ... }
//	defer engine.Close()
//
//	handle, err := engine.IssueChallenge(ctx, "u1", goCred.ChannelEmailOTP)
//	res, err := engine.VerifyChallenge(ctx, "u1", goCred.ChannelEmailOTP, code)
//
// # Challenges
//
// A challenge is one outstanding code per (subject, channel). Issuing
// replaces the prior instance. An instance ends consumed, expired or locked
// and never validates again. Codes and tokens are stored as SHA-256 digests
// and compared in constant time; the plaintext exists only in the message
// handed to the [Notifier].
//
// Supported channels:
//
//   - [ChannelEmailOTP]: 6-digit code, 10 minute TTL, delivered by email
//   - [ChannelPasswordReset]: 32-byte hex token, 60 minute TTL, delivered as a link
//   - [ChannelTOTP]: RFC 6238 authenticator code, 5 minute step-up window
//
// # Lockout
//
// Every comparison is preceded by a lockout check for the (subject, action
// class) pair. By default 5 failures within 15 minutes lock the pair for 15
// minutes. See [Engine.CheckAndRecord].
//
// # Errors
//
// Every error maps to one [ErrorKind] through [KindOf]. [PublicMessage]
// gives user-facing copy that does not distinguish a wrong code from a
// missing challenge.
//
// # Backends
//
// Redis (any [github.com/redis/go-redis/v9.UniversalClient]) stores
// challenges, lockout ledgers and revoked sessions with Lua scripts for
// per-key atomicity. [Builder.WithMemoryBackend] keeps the same semantics in
// process memory.
package goCred
