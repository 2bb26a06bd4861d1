package static

import (
	"io/fs"
	"path"
	"strings"
)

// resolvePath maps a URL path to a file in fsys.
//
// Returns the relative file name, or a canonical URL to redirect to when a
// directory with an index was requested without its trailing slash.
func resolvePath(urlPath string, fsys fs.FS) (file string, redirectTo string, ok bool) {
	p := urlPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "\x00\\") || hasDotSegments(p) {
		return "", "", false
	}

	dir := strings.HasSuffix(p, "/")
	clean := path.Clean(p)

	if clean == "/" || dir {
		name := strings.TrimPrefix(path.Join(clean, "index.html"), "/")
		return name, "", existsFile(fsys, name)
	}

	name := strings.TrimPrefix(clean, "/")
	if existsFile(fsys, name) {
		return name, "", true
	}
	if path.Ext(clean) == "" && existsFile(fsys, name+"/index.html") {
		return "", clean + "/", true
	}
	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

// hasDotSegments reports whether any segment is "." or "..". Names such as
// ".well-known" or "..." are fine.
func hasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
