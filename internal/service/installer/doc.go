// Package installer places recipe artifacts on the filesystem.
//
// It fetches sources into a temporary work directory, enforces lockfile
// checksums, stages the complete artifact set (including the rendered
// forwarding launcher) before touching the install root, applies placements
// atomically with rollback on mid-apply failure, and records the result for
// the verifier. Re-running against an already matching tree is a no-op.
package installer
