// Package jwt signs session payloads into compact cookie values and parses
// them back with strict algorithm, issuer and audience checks.
package jwt
