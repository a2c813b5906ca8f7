// Package policy scores and validates candidate passwords.
//
// # Scoring
//
// Six rules each contribute one point: at least 8 characters, at least 12
// characters, a lowercase letter, an uppercase letter, a digit, and a
// non-alphanumeric character. The score is capped at 5 and mapped to a
// label: 0-1 Weak, 2 Fair, 3 Good, 4-5 Strong.
//
// # Architecture boundaries
//
// This package is pure. It owns strength scoring and hard-reject rules only.
// Hashing lives in password/ and the account-changing flows live in the root
// package.
//
// # What this package must NOT do
//
//   - Perform I/O, logging, or storage lookups.
//   - Retain candidate passwords after a call returns.
//   - Import any other goCred package.
package policy
