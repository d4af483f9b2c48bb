package server

import (
	"io/fs"
	"net/http"
	"os"
	"strings"
)

// handleSPA serves the built web client from dir. Paths that are not files
// get index.html so the client router can handle them, e.g. /r/ABCDEF.
func handleSPA(dir string) http.HandlerFunc {
	root := os.DirFS(dir)
	fileServer := http.FileServerFS(root)

	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name != "" {
			if info, err := fs.Stat(root, name); err == nil && !info.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFileFS(w, r, root, "index.html")
	}
}
