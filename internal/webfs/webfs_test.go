package webfs

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupContent(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"index.html":     "<html>hello</html>",
		"style.css":      "body { color: red }",
		"app.js":         "console.log(1)",
		"data":           "\x00\x01\x02",
		"docs/guide.txt": "read me",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return dir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeFile(t *testing.T) {
	h := New(setupContent(t))

	tests := []struct {
		path        string
		wantType    string
		wantContent string
	}{
		{"/index.html", "text/html", "<html>hello</html>"},
		{"/style.css", "text/css", "body { color: red }"},
		{"/app.js", "application/javascript", "console.log(1)"},
		{"/data", "text/plain", "\x00\x01\x02"},
		{"/docs/guide.txt", "text/plain", "read me"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.wantType {
				t.Errorf("content type = %q, want %q", ct, tt.wantType)
			}
			if rec.Body.String() != tt.wantContent {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantContent)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	h := New(setupContent(t))

	if rec := get(t, h, "/missing.html"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDirectoryListing(t *testing.T) {
	h := New(setupContent(t))

	rec := get(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("content type = %q, want text/html", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{"index.html", "docs/", "directory", "file"} {
		if !strings.Contains(body, want) {
			t.Errorf("listing missing %q:\n%s", want, body)
		}
	}
}

func TestSubdirectoryListing(t *testing.T) {
	h := New(setupContent(t))

	rec := get(t, h, "/docs/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "guide.txt") {
		t.Error("listing missing guide.txt")
	}
	if !strings.Contains(rec.Body.String(), `href="/docs/guide.txt"`) {
		t.Error("listing link not anchored at the request path")
	}
}

func TestMissingDirectory(t *testing.T) {
	h := New(setupContent(t))

	if rec := get(t, h, "/nodir/"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDirectoryWithoutSlashRedirects(t *testing.T) {
	h := New(setupContent(t))

	rec := get(t, h, "/docs")
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/docs/" {
		t.Errorf("location = %q, want /docs/", loc)
	}
}

func TestTraversalRejected(t *testing.T) {
	dir := setupContent(t)
	// A secret outside the content root must stay unreachable.
	if err := os.WriteFile(filepath.Join(filepath.Dir(dir), "secret"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	h := New(dir)
	for _, path := range []string{"/../secret", "/docs/../../secret"} {
		rec := get(t, h, path)
		if rec.Code == http.StatusOK && rec.Body.String() == "x" {
			t.Errorf("GET %s leaked content outside the root", path)
		}
	}
}

func TestDotsInFilenameServed(t *testing.T) {
	dir := setupContent(t)
	if err := os.WriteFile(filepath.Join(dir, "notes..txt"), []byte("dotted"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	h := New(dir)
	rec := get(t, h, "/notes..txt")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "dotted" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "dotted")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(setupContent(t))

	req := httptest.NewRequest(http.MethodPost, "/index.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
