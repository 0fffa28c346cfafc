// Package session is the Redis-backed store behind refresh rotation, revocation,
// throttling and the authorization cache.
//
// # Key layout
//
//	refresh_token:<token>            JSON refresh record, TTL = refresh lifetime
//	blacklist:<token>                revokedAt (unix seconds), TTL = remaining token lifetime
//	user_tokens:<subject>            list of live refresh tokens, oldest at the head
//	authz:<subject>:<role>:<roles>   cached "allow" or "deny"
//	login_metrics:<identifier>       hash of login counters
//	login_attempts[_ip]:<id>         fixed-window throttle counters
//
// A namespace prefix may be configured; the default is empty.
//
// # Atomicity
//
// [Store.Retire] and [Store.ListEvictOldest] run as Lua scripts and are atomic on
// a single Redis node. Sequences spanning several calls are not.
//
// The package knows nothing about JWTs, passwords or roles.
package session
