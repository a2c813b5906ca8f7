package policy

import "testing"

func TestScoreLabels(t *testing.T) {
	cases := []struct {
		password string
		score    int
		label    Label
	}{
		{"", 0, LabelWeak},
		{"abc", 1, LabelWeak},
		{"abcdefgh", 2, LabelFair},
		{"abcdefgH", 3, LabelGood},
		{"abcdefH1", 4, LabelStrong},
		{"abcdeH1!", 5, LabelStrong},
		{"abcdefghijH1!", 5, LabelStrong},
	}

	for _, tc := range cases {
		got := Score(tc.password)
		if got.Score != tc.score {
			t.Fatalf("Score(%q) = %d, want %d", tc.password, got.Score, tc.score)
		}
		if got.Label != tc.label {
			t.Fatalf("Score(%q) label = %s, want %s", tc.password, got.Label, tc.label)
		}
	}
}

func TestScoreMonotonicPerRequirement(t *testing.T) {
	base := "aaaa"
	steps := []string{
		base,
		base + "aaaa",        // length >= 8
		base + "aaaaaaaa",    // length >= 12
		base + "aaaaaaaaA",   // uppercase
		base + "aaaaaaaaA1",  // digit
		base + "aaaaaaaaA1!", // special
	}

	prev := -1
	for _, p := range steps {
		s := Score(p).Score
		if s < prev {
			t.Fatalf("score decreased at %q: %d < %d", p, s, prev)
		}
		prev = s
	}

	// Each class added on its own never lowers the score.
	for _, extra := range []string{"A", "1", "!", "b"} {
		before := Score("zzzz").Score
		after := Score("zzzz" + extra).Score
		if after < before {
			t.Fatalf("adding %q lowered score %d -> %d", extra, before, after)
		}
	}
}

func TestScoreCountsRunes(t *testing.T) {
	// 7 runes, more than 8 bytes.
	if Score("ééééééé").Requirements.Length {
		t.Fatal("expected rune count below minimum length")
	}
	if !Score("éééééééé").Requirements.Length {
		t.Fatal("expected 8 runes to satisfy minimum length")
	}
	if !Score("é").Requirements.Special {
		t.Fatal("expected non-ASCII letter to count as special")
	}
}

func TestValidateViolations(t *testing.T) {
	p := Default()

	res := p.Validate("short")
	if res.Valid {
		t.Fatal("expected short password to be invalid")
	}
	for _, code := range []ViolationCode{ViolationTooShort, ViolationNoUppercase, ViolationNoDigit, ViolationNoSpecial} {
		if !res.Has(code) {
			t.Fatalf("expected violation %s, got %+v", code, res.Violations)
		}
	}
	if res.Has(ViolationNoLowercase) {
		t.Fatal("unexpected lowercase violation")
	}

	if res := p.Validate("Abc12345!"); !res.Valid {
		t.Fatalf("expected valid password, got %+v", res.Violations)
	}
}

func TestZeroPolicyOnlyEnforcesLength(t *testing.T) {
	var p Policy
	if !p.Validate("aaaaaaaa").Valid {
		t.Fatal("expected length-only policy to accept 8 lowercase letters")
	}
	if p.Validate("aaaaaaa").Valid {
		t.Fatal("length < 8 must always be invalid")
	}
}

func TestValidateChangeRejectsSamePassword(t *testing.T) {
	res := Default().ValidateChange("Abc12345!", "Abc12345!")
	if res.Valid {
		t.Fatal("expected same password to be rejected")
	}
	if !res.Has(ViolationSameAsCurrent) {
		t.Fatalf("expected same_as_current violation, got %+v", res.Violations)
	}
	if Message(ViolationSameAsCurrent) == "" {
		t.Fatal("expected message for same_as_current")
	}

	if res := Default().ValidateChange("Abc12345!", "Xyz98765?"); !res.Valid {
		t.Fatalf("expected different strong password to be accepted, got %+v", res.Violations)
	}
}
