package policy

import "unicode/utf8"

const (
	// MinLength is the hard lower bound for any password accepted by an
	// account-changing flow.
	MinLength = 8
	// StrongLength earns the second length point.
	StrongLength = 12
	// MaxScore caps the strength score.
	MaxScore = 5
)

// Label is the human-readable strength bucket.
type Label string

const (
	LabelWeak   Label = "Weak"
	LabelFair   Label = "Fair"
	LabelGood   Label = "Good"
	LabelStrong Label = "Strong"
)

// Requirements reports which individual rules a candidate satisfies.
type Requirements struct {
	Length       bool `json:"length"`
	StrongLength bool `json:"strong_length"`
	Lowercase    bool `json:"lowercase"`
	Uppercase    bool `json:"uppercase"`
	Number       bool `json:"number"`
	Special      bool `json:"special"`
}

// Strength is the result of [Score].
type Strength struct {
	Score        int          `json:"score"`
	Label        Label        `json:"label"`
	Requirements Requirements `json:"requirements"`
}

// ViolationCode identifies a single rule a candidate failed.
type ViolationCode string

const (
	ViolationTooShort      ViolationCode = "too_short"
	ViolationNoLowercase   ViolationCode = "no_lowercase"
	ViolationNoUppercase   ViolationCode = "no_uppercase"
	ViolationNoDigit       ViolationCode = "no_digit"
	ViolationNoSpecial     ViolationCode = "no_special"
	ViolationSameAsCurrent ViolationCode = "same_as_current"
)

// Violation pairs a stable code with user-facing copy.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

// Result is the outcome of [Policy.Validate] and [Policy.ValidateChange].
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Has reports whether the result contains the given violation.
func (r Result) Has(code ViolationCode) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

var violationMessages = map[ViolationCode]string{
	ViolationTooShort:      "Password must be at least 8 characters long",
	ViolationNoLowercase:   "Password must contain at least one lowercase letter",
	ViolationNoUppercase:   "Password must contain at least one uppercase letter",
	ViolationNoDigit:       "Password must contain at least one digit",
	ViolationNoSpecial:     "Password must contain at least one special character",
	ViolationSameAsCurrent: "New password cannot be the same as current password",
}

// Policy holds the hard-reject configuration. The zero value only enforces
// the minimum length; use [Default] for the full rule set.
type Policy struct {
	// RequireClasses rejects candidates missing a lowercase letter, an
	// uppercase letter, a digit or a special character.
	RequireClasses bool
}

// Default returns the policy used by account-changing flows.
func Default() Policy {
	return Policy{RequireClasses: true}
}

// Evaluate reports which rules the candidate satisfies. Length is counted in
// runes. Letter classes follow ASCII, matching how the rules are presented to
// users; any rune outside [A-Za-z0-9] counts as special.
func Evaluate(password string) Requirements {
	req := Requirements{}
	n := utf8.RuneCountInString(password)
	req.Length = n >= MinLength
	req.StrongLength = n >= StrongLength

	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			req.Lowercase = true
		case r >= 'A' && r <= 'Z':
			req.Uppercase = true
		case r >= '0' && r <= '9':
			req.Number = true
		default:
			req.Special = true
		}
	}
	return req
}

// Score computes the strength of password.
func Score(password string) Strength {
	req := Evaluate(password)

	score := 0
	for _, ok := range []bool{req.Length, req.StrongLength, req.Lowercase, req.Uppercase, req.Number, req.Special} {
		if ok {
			score++
		}
	}
	if score > MaxScore {
		score = MaxScore
	}

	return Strength{
		Score:        score,
		Label:        LabelFor(score),
		Requirements: req,
	}
}

// LabelFor maps a score to its label.
func LabelFor(score int) Label {
	switch {
	case score >= 4:
		return LabelStrong
	case score == 3:
		return LabelGood
	case score == 2:
		return LabelFair
	default:
		return LabelWeak
	}
}

// Validate applies the hard-reject rules to a new password.
func (p Policy) Validate(password string) Result {
	req := Evaluate(password)

	var violations []Violation
	if !req.Length {
		violations = append(violations, violation(ViolationTooShort))
	}
	if p.RequireClasses {
		if !req.Lowercase {
			violations = append(violations, violation(ViolationNoLowercase))
		}
		if !req.Uppercase {
			violations = append(violations, violation(ViolationNoUppercase))
		}
		if !req.Number {
			violations = append(violations, violation(ViolationNoDigit))
		}
		if !req.Special {
			violations = append(violations, violation(ViolationNoSpecial))
		}
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}

// ValidateChange validates next as a replacement for current. A replacement
// equal to the current password is always rejected.
func (p Policy) ValidateChange(current, next string) Result {
	res := p.Validate(next)
	if current != "" && current == next {
		res.Violations = append(res.Violations, violation(ViolationSameAsCurrent))
		res.Valid = false
	}
	return res
}

// Message returns the user-facing copy for a violation code.
func Message(code ViolationCode) string {
	return violationMessages[code]
}

func violation(code ViolationCode) Violation {
	return Violation{Code: code, Message: violationMessages[code]}
}
