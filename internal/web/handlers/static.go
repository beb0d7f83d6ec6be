package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Index serves the agent UI entry point.
func (d *Dispatcher) Index(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(d.cfg.AgentRoot, "index.html"))
}

// Dynamic serves /dynamic/<path> from the configured dynamic root.
func (d *Dispatcher) Dynamic(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/dynamic/")
	if d.cfg.DynamicRoot == "" {
		http.NotFound(w, r)
		return
	}
	path, ok := secureJoin(d.cfg.DynamicRoot, rel)
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// serveStatic tries the agent root then the contrib root for the request
// path. Returns false when neither holds the file so the caller can fall
// through to API dispatch.
func (d *Dispatcher) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	rel := strings.TrimPrefix(r.URL.Path, "/")
	for _, root := range []string{d.cfg.AgentRoot, d.cfg.ContribRoot} {
		if root == "" {
			continue
		}
		path, ok := secureJoin(root, rel)
		if !ok {
			return false
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		http.ServeFile(w, r, path)
		return true
	}
	return false
}

// secureJoin anchors rel under root, rejecting traversal outside it.
func secureJoin(root, rel string) (string, bool) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}
