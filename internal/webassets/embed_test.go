package webassets

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/keithlinneman/goals-api/internal/apidocs"
)

func TestOpenAPI_Parses(t *testing.T) {
	doc, err := apidocs.Parse(OpenAPI(), apidocs.EmbeddedSource)
	if err != nil {
		t.Fatalf("embedded openapi.yaml: %v", err)
	}
	if doc.Title == "" || doc.Version == "" {
		t.Fatalf("title=%q version=%q", doc.Title, doc.Version)
	}
}

func TestOpenAPI_DocumentsBuiltinRoutes(t *testing.T) {
	body := string(OpenAPI())
	for _, p := range []string{"/ping:", "/info:", "/api/v1/docs/openapi.json:"} {
		if !strings.Contains(body, p) {
			t.Errorf("openapi.yaml missing path %s", p)
		}
	}
}

func TestFallbackFS_HasIndex(t *testing.T) {
	fsys := FallbackFS()

	info, err := fs.Stat(fsys, "index.html")
	if err != nil {
		t.Fatalf("index.html not found: %v", err)
	}
	if info.IsDir() || info.Size() == 0 {
		t.Fatalf("index.html unusable: dir=%v size=%d", info.IsDir(), info.Size())
	}
}

func TestFallbackFS_NoScripts(t *testing.T) {
	data, err := fs.ReadFile(FallbackFS(), "index.html")
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	// the CSP set on every response forbids inline script and style
	if lower := strings.ToLower(string(data)); strings.Contains(lower, "<script") || strings.Contains(lower, "<style") {
		t.Fatal("fallback index must not carry inline script or style")
	}
}

func TestFallbackFS_OnlyIndex(t *testing.T) {
	entries, err := fs.ReadDir(FallbackFS(), ".")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "index.html" {
		t.Fatalf("unexpected fallback entries: %v", entries)
	}
}
