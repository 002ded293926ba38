// Package webfs serves flat files from the device's content partition
// and renders directory listings. It is independent of networking mode:
// the same handler is reachable over the target network and over the
// provisioning broadcast network.
package webfs

import (
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/logging"
)

// contentTypes maps the extensions the device commonly hosts. Anything
// else falls through to the platform MIME table, then text/plain.
var contentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".png":  "image/png",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
}

// Handler serves files under a content root.
type Handler struct {
	root string
}

// New creates a handler rooted at dir.
func New(dir string) *Handler {
	return &Handler{root: dir}
}

// ServeHTTP implements http.Handler. Paths ending in "/" render a
// generated directory listing; everything else maps to a stored file.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}
	cleaned := path.Clean(upath)
	if containsDotDot(cleaned) {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	full := filepath.Join(h.root, filepath.FromSlash(cleaned))

	if strings.HasSuffix(upath, "/") {
		h.serveListing(w, r, full, cleaned)
		return
	}

	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		http.Error(w, "file does not exist", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to stat file", zap.String("path", full), zap.Error(err))
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Redirect(w, r, upath+"/", http.StatusMovedPermanently)
		return
	}

	h.serveFile(w, r, full, info.Size())
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, full string, size int64) {
	f, err := os.Open(full)
	if err != nil {
		logging.Error("Failed to open file", zap.String("path", full), zap.Error(err))
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType(full))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		// Headers are out; all we can do is log.
		logging.Warn("File transfer interrupted", zap.String("path", full), zap.Error(err))
	}
}

// serveListing renders an HTML table of the directory's entries, the
// same name/type/size listing the device has always produced.
func (h *Handler) serveListing(w http.ResponseWriter, r *http.Request, full, urlPath string) {
	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		http.Error(w, "directory does not exist", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to read directory", zap.String("path", full), zap.Error(err))
		http.Error(w, "failed to read directory", http.StatusInternalServerError)
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body>")
	b.WriteString(`<table border="1"><thead><tr><th>Name</th><th>Type</th><th>Size (Bytes)</th></tr></thead><tbody>`)

	base := urlPath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	for _, entry := range entries {
		name := entry.Name()
		entryType := "file"
		href := base + url.PathEscape(name)
		display := name
		var size int64
		if entry.IsDir() {
			entryType = "directory"
			href += "/"
			display += "/"
		} else if info, err := entry.Info(); err == nil {
			size = info.Size()
		}

		fmt.Fprintf(&b, `<tr><td><a href="%s">%s</a></td><td>%s</td><td>%d</td></tr>`,
			href, html.EscapeString(display), entryType, size)
	}

	b.WriteString("</tbody></table></body></html>")

	w.Header().Set("Content-Type", "text/html")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, b.String())
}

// containsDotDot reports whether any path segment is "..". Filenames
// that merely contain consecutive dots ("notes..txt") are legitimate.
func containsDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "text/plain"
}
