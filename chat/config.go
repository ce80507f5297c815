package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/gosuda/portal-chat/chat/auth"
	"github.com/gosuda/portal-chat/chat/storage"
)

const appDir = "portal-chat"

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// socketURL returns override, or the /socket endpoint on the api host with the
// scheme switched to ws or wss.
func socketURL(apiURL, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("api url %q: unsupported scheme %q", apiURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api url %q: missing host", apiURL)
	}
	u.Path = "/socket"
	u.RawQuery, u.Fragment = "", ""
	return u.String(), nil
}

func dataPath() (string, error) {
	if flagDataPath != "" {
		return flagDataPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, appDir), nil
}

// openStore opens the local key/value store under the data path. The caller
// closes the returned storage.
func openStore() (*storage.Local, *auth.Store, error) {
	dir, err := dataPath()
	if err != nil {
		return nil, nil, err
	}
	local, err := storage.Open(filepath.Join(dir, "store"))
	if err != nil {
		return nil, nil, err
	}
	return local, auth.NewStore(local), nil
}
