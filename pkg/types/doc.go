// Package types holds the shared data model for linkdrive: managed links,
// drives, path states, reconciliation actions and the filesystem interface
// the rest of the codebase is written against.
package types
