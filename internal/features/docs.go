package features

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/goals-api/internal/apidocs"
	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/dispatch"
	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// The CSP sent on every response blocks inline script and style, so the
// index is plain markup.
var docsIndex = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Version}}</title>
</head>
<body>
<h1>{{.Title}} <small>{{.Version}}</small></h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p><a href="{{.Base}}/openapi.json">openapi.json</a> | <a href="{{.Base}}/openapi.yaml">openapi.yaml</a></p>
{{if .Operations}}<table>
<thead><tr><th>Method</th><th>Path</th><th>Summary</th><th>Tags</th></tr></thead>
<tbody>
{{range .Operations}}<tr id="{{.OperationID}}">
<td><code>{{.Method}}</code></td>
<td><code>{{.Path}}</code></td>
<td>{{if .Deprecated}}<del>{{.Summary}}</del> (deprecated){{else}}{{.Summary}}{{end}}</td>
<td>{{range $i, $t := .Tags}}{{if $i}}, {{end}}{{$t}}{{end}}</td>
</tr>
{{end}}</tbody>
</table>{{else}}<p>The document defines no operations.</p>{{end}}
<p>OpenAPI {{.OpenAPI}}, loaded {{.LoadedAt.Format "2006-01-02T15:04:05Z07:00"}}.</p>
</body>
</html>
`))

// Docs serves the current document from store. Every request reads the
// store so reloads are visible immediately.
func Docs(store *apidocs.Store) http.Handler {
	return dispatch.NewGroup(func(r chi.Router) {
		get(r, "/", func(w http.ResponseWriter, r *http.Request) {
			doc := store.Current()
			var buf bytes.Buffer
			err := docsIndex.Execute(&buf, struct {
				*apidocs.Document
				Base string
			}{doc, docsBase(r)})
			if err != nil {
				apperr.Raise(w, r, apperr.Unexpected(xerrors.Wrap(err, "render docs index")))
				return
			}
			writeDoc(w, "text/html; charset=utf-8", buf.Bytes())
		})
		get(r, "/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			doc := store.Current()
			if notModified(w, r, doc, "json") {
				return
			}
			writeDoc(w, "application/json; charset=utf-8", doc.JSON())
		})
		get(r, "/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			doc := store.Current()
			if notModified(w, r, doc, "yaml") {
				return
			}
			writeDoc(w, "application/yaml; charset=utf-8", doc.YAML())
		})
	})
}

// notModified sets a strong ETag per representation and answers 304 when
// the client already has it.
func notModified(w http.ResponseWriter, r *http.Request, doc *apidocs.Document, repr string) bool {
	tag := `"` + doc.Hash[:16] + "-" + repr + `"`
	w.Header().Set("ETag", tag)
	for _, t := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if t = strings.TrimSpace(t); t == tag || t == "*" {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

func writeDoc(w http.ResponseWriter, contentType string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// docsBase is the mount prefix the request came through, so links keep
// working whatever prefix the group is bound to.
func docsBase(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.RoutePatterns) == 0 {
		return ""
	}
	// the dispatcher records "<prefix>/*" as the first pattern
	p := rctx.RoutePatterns[0]
	if len(p) >= 2 && p[len(p)-2:] == "/*" {
		return p[:len(p)-2]
	}
	return ""
}
