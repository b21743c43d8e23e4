// Package common holds helpers shared by the packaging services: actor
// detection for the install audit trail and best-effort process termination
// used before files are replaced.
package common
