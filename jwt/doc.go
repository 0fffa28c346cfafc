// Package jwt signs and verifies short-lived access tokens carrying subject, email and role
// claims. A single HMAC algorithm is accepted on verify; no algorithm negotiation takes place.
package jwt
