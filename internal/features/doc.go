// Package features builds the handler groups bound in the mount table.
//
// Ping, info and docs are served here. Every other feature group is a
// placeholder that raises 501 until a real implementation is supplied
// through Groups.
package features
