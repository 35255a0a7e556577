// Package version holds the application version string.
package version

// Version is the application version, reported by /health and stamped
// into backup metadata.
const Version = "1.0.0"
