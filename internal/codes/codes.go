// Package codes mints one-time codes and opaque tokens and derives their
// at-rest digests.
package codes

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	DefaultDigits     = 6
	MinDigits         = 4
	MaxDigits         = 10
	DefaultTokenBytes = 32
	minTokenBytes     = 16
)

var (
	// ErrGeneration is matched by every [GenerationError].
	ErrGeneration = errors.New("secure random source unavailable")
	// ErrInvalidLength reports an out-of-range digit count or token size.
	ErrInvalidLength = errors.New("invalid code length")
)

// GenerationError reports a failure of the underlying random source. It is
// fatal for the current request and never retried here.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrGeneration, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// Generator draws from Reader, which defaults to crypto/rand.
type Generator struct {
	Reader io.Reader
}

// Default draws from crypto/rand.Reader.
var Default = Generator{}

func (g Generator) reader() io.Reader {
	if g.Reader == nil {
		return rand.Reader
	}
	return g.Reader
}

// Code returns a zero-padded numeric code drawn uniformly from [0, 10^digits).
func (g Generator) Code(digits int) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", ErrInvalidLength
	}

	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(g.reader(), max)
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	code := fmt.Sprintf("%0*d", digits, n)
	if len(code) != digits {
		return "", &GenerationError{Err: errors.New("invalid code generation length")}
	}
	return code, nil
}

// OpaqueToken returns byteLength random bytes, hex encoded.
func (g Generator) OpaqueToken(byteLength int) (string, error) {
	if byteLength < minTokenBytes {
		return "", ErrInvalidLength
	}

	raw := make([]byte, byteLength)
	if _, err := io.ReadFull(g.reader(), raw); err != nil {
		return "", &GenerationError{Err: err}
	}
	return hex.EncodeToString(raw), nil
}

// GenerateCode mints a code with the default generator.
func GenerateCode(digits int) (string, error) {
	return Default.Code(digits)
}

// GenerateOpaqueToken mints a token with the default generator.
func GenerateOpaqueToken(byteLength int) (string, error) {
	return Default.OpaqueToken(byteLength)
}

// Hash is the one-way digest stored in place of a code or token.
func Hash(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// Equal compares two digests in constant time.
func Equal(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// IsNumeric reports whether s is a non-empty string of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsHex reports whether s is a non-empty string of lowercase hex digits, the
// form produced by OpaqueToken.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
