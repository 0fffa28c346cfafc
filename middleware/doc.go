// Package middleware exposes the bearer boundary as net/http middleware.
//
// [Guard] reads the Authorization header, calls Engine.Authenticate with the
// route's required roles and injects the verified claims into the request
// context. Failures are answered with the status of authcore.OutcomeOf and a
// uniform body, so a caller learns nothing beyond the outcome.
//
// Authentication logic stays in the engine; this package only translates HTTP.
package middleware
