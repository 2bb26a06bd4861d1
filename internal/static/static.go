// Package static serves the built single-page frontend in production.
// Files that exist under the root are served with cache headers by type;
// every other GET receives the index document so client-side routing works.
package static

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"

	"github.com/keithlinneman/goals-api/internal/dispatch"
)

var ErrInvalidOptions = errors.New("static: invalid options")

type Options struct {
	// FS is the asset root, usually os.DirFS(cfg.StaticDir).
	FS fs.FS
	// IndexFile is served for every path that is not a file. Default "index.html".
	IndexFile string

	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.IndexFile == "" {
		o.IndexFile = "index.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.FS == nil {
		return fmt.Errorf("%w: FS is nil", ErrInvalidOptions)
	}
	// a missing index would turn every fallback into a 404; fail at boot instead
	if !existsFile(o.FS, o.IndexFile) {
		return fmt.Errorf("%w: index %q not found in asset root", ErrInvalidOptions, o.IndexFile)
	}
	return nil
}

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		dispatch.NotFound(w, r)
		return
	}

	file, redirectTo, found := resolvePath(r.URL.Path, h.opts.FS)
	if redirectTo != "" {
		// 308 keeps the method
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		if !existsFile(h.opts.FS, h.opts.IndexFile) {
			// asset root changed under us since boot
			dispatch.NotFound(w, r)
			return
		}
		file = h.opts.IndexFile
	}

	if cc := cacheControlForFile(file, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	serveFile(w, r, h.opts.FS, file)
}

// serveFile avoids http.ServeFileFS's redirect of ".../index.html" URLs,
// which would bounce SPA fallbacks.
func serveFile(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) {
	f, err := fsys.Open(name)
	if err != nil {
		dispatch.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		dispatch.NotFound(w, r)
		return
	}
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		http.ServeFileFS(w, r, fsys, name)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), rs)
}
