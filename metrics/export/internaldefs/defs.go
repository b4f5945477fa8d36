package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one authcore counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one authcore latency histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricSessionIssued, Name: "authcore_session_issued_total", Help: "Sessions admitted."},
	{ID: authcore.MetricSessionIssueFailure, Name: "authcore_session_issue_failure_total", Help: "Session issuance attempts that did not persist a session."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Sessions deleted because their refresh token or user was no longer valid."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logout and revoke operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Access token ids written to the blacklist."},
	{ID: authcore.MetricAuthenticateSuccess, Name: "authcore_authenticate_success_total", Help: "Accepted bearer tokens."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Rejected bearer tokens."},
	{ID: authcore.MetricAuthenticateStoreFailure, Name: "authcore_authenticate_store_failure_total", Help: "Bearer tokens rejected because the blacklist was unreachable."},
	{ID: authcore.MetricOTPIssued, Name: "authcore_otp_issued_total", Help: "One-time codes issued."},
	{ID: authcore.MetricOTPDeliveryFailure, Name: "authcore_otp_delivery_failure_total", Help: "One-time codes discarded after a failed delivery."},
	{ID: authcore.MetricOTPConsumed, Name: "authcore_otp_consumed_total", Help: "One-time codes accepted."},
	{ID: authcore.MetricOTPExpired, Name: "authcore_otp_expired_total", Help: "Consume attempts with no live challenge."},
	{ID: authcore.MetricOTPInvalid, Name: "authcore_otp_invalid_total", Help: "Consume attempts with a wrong code."},
	{ID: authcore.MetricOTPRateLimited, Name: "authcore_otp_rate_limited_total", Help: "Rate-limited OTP issue or consume attempts."},
	{ID: authcore.MetricAdminLoginSuccess, Name: "authcore_admin_login_success_total", Help: "Completed admin logins."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Confirmed password changes."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Confirmed password resets."},
	{ID: authcore.MetricStoreFailure, Name: "authcore_store_failure_total", Help: "Operations failed by an unreachable Redis."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = 8

// UpperBoundsSeconds are the finite bucket bounds of
// authcore.HistogramBucketBounds in seconds.
var UpperBoundsSeconds = func() []float64 {
	out := make([]float64, len(authcore.HistogramBucketBounds))
	for i, d := range authcore.HistogramBucketBounds {
		out[i] = d.Seconds()
	}
	return out
}()

// HistogramBoundSuffix names each bucket for exporters that flatten a
// histogram into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
