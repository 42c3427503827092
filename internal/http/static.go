package httpx

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// staticHandler serves the single-page frontend. Unknown paths fall back to index.html so the
// client-side router can resolve them.
func (r *Router) staticHandler() http.HandlerFunc {
	if r.staticDir == "" {
		return r.audit("not_found", func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) })
	}
	root := os.DirFS(r.staticDir)
	files := http.FileServer(http.FS(root))
	return r.audit("static", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			r.methodNotAllowed(w)
			return
		}
		name := strings.TrimPrefix(path.Clean("/"+req.URL.Path), "/")
		if name != "" {
			if info, err := fs.Stat(root, name); err == nil && !info.IsDir() {
				files.ServeHTTP(w, req)
				return
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("static lookup failed", "path", req.URL.Path, "error", err)
			}
		}
		http.ServeFile(w, req, filepath.Join(r.staticDir, "index.html"))
	})
}
