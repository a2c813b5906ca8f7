package goCred

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B.
func TestHOTPCodeVectors(t *testing.T) {
	sha1Key := []byte("12345678901234567890")
	sha256Key := []byte("12345678901234567890123456789012")
	sha512Key := []byte("1234567890123456789012345678901234567890123456789012345678901234")

	cases := []struct {
		unix int64
		alg  string
		key  []byte
		want string
	}{
		{59, "SHA1", sha1Key, "94287082"},
		{59, "SHA256", sha256Key, "46119246"},
		{59, "SHA512", sha512Key, "90693936"},
		{1111111109, "SHA1", sha1Key, "07081804"},
		{1234567890, "SHA1", sha1Key, "89005924"},
		{20000000000, "SHA1", sha1Key, "65353130"},
	}
	for _, tc := range cases {
		got, err := hotpCode(tc.key, tc.unix/30, 8, tc.alg)
		if err != nil {
			t.Fatalf("hotpCode(%d, %s): %v", tc.unix, tc.alg, err)
		}
		if got != tc.want {
			t.Fatalf("hotpCode(%d, %s) = %s, want %s", tc.unix, tc.alg, got, tc.want)
		}
	}
}

func TestTOTPVerifyWindow(t *testing.T) {
	cfg := DefaultConfig().Challenge.TOTP
	v := newTOTPVerifier(cfg)
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111109, 0)

	prev, _ := hotpCode(secret, now.Unix()/30-1, 6, "SHA1")
	far, _ := hotpCode(secret, now.Unix()/30-3, 6, "SHA1")

	step, ok, err := v.verify(secret, prev, now)
	if err != nil || !ok {
		t.Fatalf("previous step should be accepted: ok=%v err=%v", ok, err)
	}
	if step != now.Unix()/30-1 {
		t.Fatalf("matched step %d, want %d", step, now.Unix()/30-1)
	}
	_, ok, err = v.verify(secret, far, now)
	if err != nil || ok {
		t.Fatalf("step outside the skew should be rejected: ok=%v err=%v", ok, err)
	}
	if _, _, err := v.verify(nil, prev, now); err == nil {
		t.Fatal("empty secret should error")
	}
	if _, ok, _ := v.verify(secret, "12a456", now); ok {
		t.Fatal("non-numeric code accepted")
	}
	if v.replayWindow() < time.Duration(2*cfg.Skew+1)*time.Duration(cfg.Period)*time.Second {
		t.Fatalf("replay window %s shorter than the skew window", v.replayWindow())
	}
}

func TestTOTPEnrollment(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)

	enr, err := env.engine.NewTOTPEnrollment("alice@example.test")
	if err != nil {
		t.Fatalf("NewTOTPEnrollment: %v", err)
	}
	if len(enr.Secret) != totpSecretBytes || strings.Contains(enr.Base32, "=") {
		t.Fatalf("unexpected secret %+v", enr)
	}

	u, err := url.Parse(enr.URI)
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected uri %q", enr.URI)
	}
	q := u.Query()
	if q.Get("secret") != enr.Base32 || q.Get("issuer") != "goCred" || q.Get("digits") != "6" {
		t.Fatalf("unexpected query %v", q)
	}

	if _, err := env.engine.NewTOTPEnrollment(""); err == nil {
		t.Fatal("empty account should be rejected")
	}
}
