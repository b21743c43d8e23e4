// Package packager prepares the integrity lockfile consumed by the installer.
//
// It fetches every declared source, computes real SHA-256 checksums (replacing
// SKIP declarations), and writes the lockfile next to the recipe so installs
// and audits can enforce content integrity.
package packager
