package internaldefs

import "github.com/MrEthical07/authcore"

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: authcore.MetricLoginThrottled, Name: "authcore_login_throttled_total", Help: "Logins denied by the throttle."},
	{ID: authcore.MetricLockoutSignal, Name: "authcore_lockout_signal_total", Help: "Identifiers that reached the consecutive failure alert threshold."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authcore.MetricRefreshReplay, Name: "authcore_refresh_replay_total", Help: "Retired refresh tokens presented again."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Refresh sessions created."},
	{ID: authcore.MetricSessionEvicted, Name: "authcore_session_evicted_total", Help: "Sessions revoked to honor the per-account cap."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout calls."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all calls."},
	{ID: authcore.MetricVerifySuccess, Name: "authcore_verify_success_total", Help: "Access tokens accepted."},
	{ID: authcore.MetricVerifyFailure, Name: "authcore_verify_failure_total", Help: "Access tokens rejected."},
	{ID: authcore.MetricAuthorizeAllowed, Name: "authcore_authorize_allowed_total", Help: "Authorization checks allowed."},
	{ID: authcore.MetricAuthorizeDenied, Name: "authcore_authorize_denied_total", Help: "Authorization checks denied."},
	{ID: authcore.MetricStoreUnavailable, Name: "authcore_store_unavailable_total", Help: "Operations failed because the session store or user directory was unreachable."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency."},
	{ID: authcore.MetricRefreshLatency, Name: "authcore_refresh_latency_seconds", Help: "Refresh latency."},
	{ID: authcore.MetricVerifyLatency, Name: "authcore_verify_latency_seconds", Help: "Access token verification latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

// AuditDroppedHelp documents AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramBounds are the finite upper bounds, in seconds, of the first seven
// buckets. The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
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

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [authcore.HistogramBucketCount]uint64 {
	var out [authcore.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [authcore.HistogramBucketCount]uint64) [authcore.HistogramBucketCount]uint64 {
	var out [authcore.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
