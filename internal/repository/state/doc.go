// Package state persists the record of a completed install: package identity,
// timestamp, acting host/user, and per-destination checksums. The verifier
// reads it to audit the installed tree; uninstall removes it.
package state
