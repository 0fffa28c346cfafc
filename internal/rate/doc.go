// Package rate implements the login throttle: Redis fixed-window counters per
// normalized identifier and, optionally, per client address.
//
// # Window semantics
//
// INCR, then EXPIRE only when the counter was just created. The window starts
// at the first attempt and the counter disappears when it ends. Every attempt
// consumes quota, successful or not, so a burst of correct guesses is throttled
// exactly like a burst of wrong ones.
//
// Keys (see session.Keys):
//   - login_attempts:<identifier>
//   - login_attempts_ip:<ip>
package rate
