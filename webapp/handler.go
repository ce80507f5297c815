package main

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// NewHandler serves the built front-end in fsys. Paths that name no file fall
// back to index.html so client-side routes such as /chat or /login resolve.
func NewHandler(fsys fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/*", spaHandler(fsys))
	return r
}

func spaHandler(fsys fs.FS) http.Handler {
	files := http.FileServerFS(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			serveIndex(w, r, fsys)
			return
		}
		info, err := fs.Stat(fsys, name)
		switch {
		case err == nil && !info.IsDir():
			files.ServeHTTP(w, r)
		case err == nil || errors.Is(err, fs.ErrNotExist):
			// unknown paths with an extension are real misses, not routes
			if path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
			serveIndex(w, r, fsys)
		default:
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

func serveIndex(w http.ResponseWriter, r *http.Request, fsys fs.FS) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, fsys, "index.html")
}
