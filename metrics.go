package goCred

import "github.com/MrEthical07/goCred/internal/metrics"

// MetricID identifies one engine counter.
type MetricID = metrics.MetricID

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot = metrics.Snapshot

const (
	MetricChallengeIssued             = metrics.MetricChallengeIssued
	MetricChallengeResent             = metrics.MetricChallengeResent
	MetricChallengeResendCooldown     = metrics.MetricChallengeResendCooldown
	MetricChallengeVerifySuccess      = metrics.MetricChallengeVerifySuccess
	MetricChallengeInvalidCode        = metrics.MetricChallengeInvalidCode
	MetricChallengeExpired            = metrics.MetricChallengeExpired
	MetricChallengeNotFound           = metrics.MetricChallengeNotFound
	MetricChallengeAttemptsExceeded   = metrics.MetricChallengeAttemptsExceeded
	MetricDeliveryFailure             = metrics.MetricDeliveryFailure
	MetricLockoutTriggered            = metrics.MetricLockoutTriggered
	MetricLockoutRejected             = metrics.MetricLockoutRejected
	MetricLoginSuccess                = metrics.MetricLoginSuccess
	MetricLoginFailure                = metrics.MetricLoginFailure
	MetricLoginMFARequired            = metrics.MetricLoginMFARequired
	MetricPasswordChangeSuccess       = metrics.MetricPasswordChangeSuccess
	MetricPasswordChangeFailure       = metrics.MetricPasswordChangeFailure
	MetricPasswordChangeReuseRejected = metrics.MetricPasswordChangeReuseRejected
	MetricPasswordResetRequest        = metrics.MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess = metrics.MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure = metrics.MetricPasswordResetConfirmFailure
	MetricSessionIssued               = metrics.MetricSessionIssued
	MetricSessionRefreshed            = metrics.MetricSessionRefreshed
	MetricSessionRevoked              = metrics.MetricSessionRevoked
	MetricSessionStale                = metrics.MetricSessionStale
	MetricVerifyLatency               = metrics.MetricVerifyLatency
	MetricIDCount                     = metrics.MetricIDCount
)

// HistBucketCount is the number of latency buckets per histogram.
const HistBucketCount = metrics.HistBucketCount
