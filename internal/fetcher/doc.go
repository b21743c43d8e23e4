// Package fetcher retrieves recipe sources into a working directory.
//
// It downloads HTTP(S) origins (with an optional progress bar), copies local
// and file:// origins, verifies declared SHA-256 checksums, checks detached
// PGP signatures against a configured keyring, and unpacks tarball sources so
// install mappings can reference archive members.
package fetcher
