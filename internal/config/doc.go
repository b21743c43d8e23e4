// Package config loads, validates, and persists tool-level settings shared by
// the popup packaging binaries: install root, source cache location, keyring
// path, and download timeout. Settings live in a YAML file; a missing file
// yields defaults so the tools run unconfigured.
package config
