package internaldefs

import (
	"strconv"

	goCred "github.com/MrEthical07/goCred"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goCred.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   goCred.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goCred.MetricChallengeIssued, Name: "gocred_challenge_issued_total", Help: "Verification challenges issued."},
	{ID: goCred.MetricChallengeResent, Name: "gocred_challenge_resent_total", Help: "Verification challenges re-issued through resend."},
	{ID: goCred.MetricChallengeResendCooldown, Name: "gocred_challenge_resend_cooldown_total", Help: "Resend requests rejected inside the cooldown window."},
	{ID: goCred.MetricChallengeVerifySuccess, Name: "gocred_challenge_verify_success_total", Help: "Successful challenge verifications."},
	{ID: goCred.MetricChallengeInvalidCode, Name: "gocred_challenge_invalid_code_total", Help: "Verifications with a wrong code."},
	{ID: goCred.MetricChallengeExpired, Name: "gocred_challenge_expired_total", Help: "Verifications against an expired challenge."},
	{ID: goCred.MetricChallengeNotFound, Name: "gocred_challenge_not_found_total", Help: "Verifications with no pending challenge."},
	{ID: goCred.MetricChallengeAttemptsExceeded, Name: "gocred_challenge_attempts_exceeded_total", Help: "Challenges burned by the attempt cap."},
	{ID: goCred.MetricDeliveryFailure, Name: "gocred_delivery_failure_total", Help: "Notification deliveries that failed."},
	{ID: goCred.MetricLockoutTriggered, Name: "gocred_lockout_triggered_total", Help: "Lockouts entered after repeated failures."},
	{ID: goCred.MetricLockoutRejected, Name: "gocred_lockout_rejected_total", Help: "Requests rejected while locked out."},
	{ID: goCred.MetricLoginSuccess, Name: "gocred_login_success_total", Help: "Successful password logins."},
	{ID: goCred.MetricLoginFailure, Name: "gocred_login_failure_total", Help: "Failed password logins."},
	{ID: goCred.MetricLoginMFARequired, Name: "gocred_login_mfa_required_total", Help: "Logins that required a second factor."},
	{ID: goCred.MetricPasswordChangeSuccess, Name: "gocred_password_change_success_total", Help: "Successful password changes."},
	{ID: goCred.MetricPasswordChangeFailure, Name: "gocred_password_change_failure_total", Help: "Password changes rejected for a wrong current password."},
	{ID: goCred.MetricPasswordChangeReuseRejected, Name: "gocred_password_change_reuse_rejected_total", Help: "Password changes rejected for reusing the current password."},
	{ID: goCred.MetricPasswordResetRequest, Name: "gocred_password_reset_request_total", Help: "Forgot-password requests."},
	{ID: goCred.MetricPasswordResetConfirmSuccess, Name: "gocred_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: goCred.MetricPasswordResetConfirmFailure, Name: "gocred_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: goCred.MetricSessionIssued, Name: "gocred_session_issued_total", Help: "Sessions issued."},
	{ID: goCred.MetricSessionRefreshed, Name: "gocred_session_refreshed_total", Help: "Sessions refreshed."},
	{ID: goCred.MetricSessionRevoked, Name: "gocred_session_revoked_total", Help: "Sessions revoked."},
	{ID: goCred.MetricSessionStale, Name: "gocred_session_stale_total", Help: "Refreshes refused because the subject no longer exists."},
}

var HistogramDefs = []HistogramDef{
	{ID: goCred.MetricVerifyLatency, Name: "gocred_verify_latency_seconds", Help: "Challenge verification latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the first
// HistBucketCount-1 buckets. The last bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabel is the "le" label of bucket i, matching Prometheus text
// format ("0.005", ..., "+Inf").
func BucketLabel(i int) string {
	if i < 0 || i >= len(HistogramBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramBounds[i], 'g', -1, 64)
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [goCred.HistBucketCount]uint64 {
	var out [goCred.HistBucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [goCred.HistBucketCount]uint64) [goCred.HistBucketCount]uint64 {
	var out [goCred.HistBucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
