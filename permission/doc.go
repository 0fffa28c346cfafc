// Package permission decides whether a role satisfies a set of required roles
// and caches those decisions in Redis.
//
// [RoleTable] is built once and never mutated. A role holding the wildcard
// permission "*" satisfies every requirement.
//
// [Cache] is an accelerator, not an authority: on any Redis error the decision
// is computed from the table and the request proceeds.
package permission
