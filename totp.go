package goCred

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goCred/internal/codes"
)

const totpSecretBytes = 20

var errEmptyTOTPSecret = errors.New("empty totp secret")

// TOTPEnrollment is a freshly generated authenticator secret. The caller
// stores Secret on the credential and shows URI as a QR code.
type TOTPEnrollment struct {
	Secret []byte
	Base32 string
	URI    string
}

type totpVerifier struct {
	config TOTPConfig
}

func newTOTPVerifier(cfg TOTPConfig) *totpVerifier {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpVerifier{config: cfg}
}

func (v *totpVerifier) enroll(account string) (TOTPEnrollment, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return TOTPEnrollment{}, &codes.GenerationError{Err: err}
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	return TOTPEnrollment{
		Secret: raw,
		Base32: enc,
		URI:    v.provisionURI(enc, account),
	}, nil
}

func (v *totpVerifier) provisionURI(secretBase32, account string) string {
	issuer := v.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	q := url.Values{}
	q.Set("secret", secretBase32)
	q.Set("issuer", issuer)
	q.Set("period", strconv.Itoa(v.config.Period))
	q.Set("digits", strconv.Itoa(v.config.Digits))
	q.Set("algorithm", strings.ToUpper(v.config.Algorithm))

	return "otpauth://totp/" + label + "?" + q.Encode()
}

// verify checks code against every step in the skew window and returns the
// matching step. Each candidate is compared in constant time.
func (v *totpVerifier) verify(secret []byte, code string, now time.Time) (int64, bool, error) {
	if len(secret) == 0 {
		return 0, false, errEmptyTOTPSecret
	}
	if len(code) != v.config.Digits || !codes.IsNumeric(code) {
		return 0, false, nil
	}

	base := now.Unix() / int64(v.config.Period)
	var (
		matched int
		step    int64
	)
	for skew := -v.config.Skew; skew <= v.config.Skew; skew++ {
		counter := base + int64(skew)
		if counter < 0 {
			continue
		}
		want, err := hotpCode(secret, counter, v.config.Digits, v.config.Algorithm)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			matched, step = 1, counter
		}
	}
	return step, matched == 1, nil
}

// replayWindow is how long a claimed step must be remembered: past it the
// step falls outside the skew window anyway.
func (v *totpVerifier) replayWindow() time.Duration {
	return time.Duration(2*v.config.Skew+2) * time.Duration(v.config.Period) * time.Second
}

// hotpCode is RFC 4226 dynamic truncation.
func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}
