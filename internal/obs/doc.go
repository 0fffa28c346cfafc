// Package obs holds the process logger and health endpoint shared by the
// authcore binaries.
package obs
