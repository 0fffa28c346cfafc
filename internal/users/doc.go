// Package users provides authcore.UserProvider implementations: a Postgres
// directory over database/sql with the pgx driver, and an in-memory directory
// for demos, load tests and package tests. Both accept password hash upgrades
// and write nothing else.
package users
