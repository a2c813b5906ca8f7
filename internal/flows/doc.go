// Package flows contains the orchestration behind every credential Engine
// operation.
//
// Each flow function (RunIssueChallenge, RunVerifyChallenge, RunLogin,
// RunChangePassword, etc.) accepts a typed dependency struct of closures and
// backends and returns a result plus an error built from the sentinels in
// Errors. The Engine builds these structs once and stays thin.
//
// # Architecture boundaries
//
// Flows coordinate the challenge store, lockout guard, hasher, directory and
// notifier. They do NOT own any of these resources; ownership stays with the
// Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goCred (to avoid import cycles).
//   - Log or audit plaintext codes, tokens or passwords.
package flows
