// Package limiters keeps per-identifier login statistics in Redis.
//
// [LoginMetrics] is observability only. It never admits or rejects an attempt;
// admission is the job of internal/rate. When consecutive failures reach the
// configured threshold the returned [Record] carries a lockout signal that the
// caller may audit or alert on.
//
// All methods are nil-safe: a nil *LoginMetrics records nothing.
package limiters
