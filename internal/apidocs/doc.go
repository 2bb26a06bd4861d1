// Package apidocs holds the OpenAPI document served under the docs mount.
//
// The document is authored as YAML, parsed once per load and kept in
// memory as both YAML and JSON bytes. A Store hands out immutable
// Document snapshots; Watch swaps in a new snapshot whenever the backing
// file changes on disk and keeps the previous one when the new file does
// not parse.
package apidocs
