// Package authcore is an authentication and session-lifecycle core: short-lived
// HS256 access tokens, rotating opaque refresh tokens stored in Redis, a
// per-account session cap, a login throttle and a cached role check.
//
// Engine methods are safe to call from multiple goroutines once [Builder.Build]
// returns.
//
// # Architecture boundaries
//
// authcore is the public surface: [Engine], [Builder], [Config], the error
// kinds and value types. Orchestration lives in internal/flows; the session
// keyspace in session; rotation in refresh; throttling in internal/rate.
// User records are read through [UserProvider]. The only write is a password
// hash upgrade after login, when the provider implements [PasswordUpgrader].
//
// # Error model
//
// Every failure is one of the Err* kinds. [KindOf] classifies an error and
// [OutcomeOf] collapses it to what a boundary should answer. Only
// [ErrStoreUnavailable] is infrastructural. Credential failures are uniform:
// callers cannot tell an unknown account from a wrong password.
//
// # Hot path
//
// Verify parses the token offline and costs one Redis EXISTS on the
// blacklist. When Redis cannot answer, the token is rejected.
package authcore
