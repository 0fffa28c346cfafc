// Package flows holds the orchestration behind each Engine operation.
//
// Every flow (RunLogin, RunRefresh, RunValidate, RunLogout) takes a typed
// dependency struct and returns a result carrying a failure kind instead of
// a bare error. The root package maps kinds to its public errors, metrics and
// audit events, so flows never import it.
//
// Flows hold no state between calls and perform no I/O of their own.
package flows
