package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":       {Data: []byte("<!doctype html><div id=root></div>")},
		"assets/app.js":    {Data: []byte("console.log('app')")},
		"assets/style.css": {Data: []byte("body{}")},
		"favicon.svg":      {Data: []byte("<svg/>")},
	}
	srv := httptest.NewServer(NewHandler(fsys))
	t.Cleanup(srv.Close)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"root", "/", http.StatusOK, "<div id=root>"},
		{"asset", "/assets/app.js", http.StatusOK, "console.log"},
		{"client route", "/chat", http.StatusOK, "<div id=root>"},
		{"nested client route", "/login/reset", http.StatusOK, "<div id=root>"},
		{"directory", "/assets", http.StatusOK, "<div id=root>"},
		{"missing asset", "/assets/missing.js", http.StatusNotFound, ""},
		{"health", "/healthz", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, string(body), tt.wantBody)
		})
	}
}

func TestIndexNotCached(t *testing.T) {
	fsys := fstest.MapFS{"index.html": {Data: []byte("app")}}
	rec := httptest.NewRecorder()
	NewHandler(fsys).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "app", rec.Body.String())
}

func TestRelayServers(t *testing.T) {
	assert.Equal(t, []string{"https://a", "https://b"}, relayServers([]string{" https://a ", "", "https://b"}))
	assert.Empty(t, relayServers([]string{""}))
}
