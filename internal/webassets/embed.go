// Package webassets embeds the files the server can run with when nothing
// is configured on disk: the default OpenAPI document and a placeholder
// single-page-app root.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed openapi.yaml fallback
var embedded embed.FS

// OpenAPI returns the default OpenAPI document.
func OpenAPI() []byte {
	b, err := embedded.ReadFile("openapi.yaml")
	if err != nil {
		panic(fmt.Errorf("webassets: openapi.yaml: %w", err))
	}
	return b
}

// FallbackFS is the static root used in production when no static dir is
// configured. It holds index.html only.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}
