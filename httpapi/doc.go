// Package httpapi mounts the authcore HTTP boundary on a gorilla/mux router:
//
//	POST /auth/login    {email, password} -> {access_token, token_type, expires_in} + refresh cookie
//	POST /auth/refresh  refresh cookie or {refresh_token} -> new pair + cookie
//	POST /auth/logout   refresh cookie and optional bearer -> 204, cookie cleared
//	GET  /auth/me       bearer -> verified claims
//
// Login and refresh sit behind a per-IP token bucket that sheds floods before
// they reach the store-backed throttle. Errors are written by
// [middleware.WriteError].
package httpapi
