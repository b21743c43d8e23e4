// Package verifier audits an installed tree against its recipe: every
// destination must exist with the declared permission bits and recorded
// checksum, and the generated launcher must forward arguments unmodified to
// the declared interpreter. All findings are reported in one pass.
package verifier
