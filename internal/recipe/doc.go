// Package recipe defines the package descriptor consumed by the popup
// packaging tools: identity metadata, runtime dependencies, fetched sources
// with declared checksums, the install mapping (absolute destinations with
// fixed modes), and the forwarding launcher declaration.
//
// Recipes are YAML documents validated against an embedded JSON Schema before
// decoding. The companion lockfile records the checksums actually computed
// from fetched sources so installs can enforce integrity even when a recipe
// declares SKIP.
package recipe
