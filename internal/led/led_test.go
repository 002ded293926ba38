package led

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileIndicator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brightness")

	ind, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	// Starts off.
	if ind.State() {
		t.Error("State() = true after init, want false")
	}
	assertFileContent(t, path, "0")

	if err := ind.Set(true); err != nil {
		t.Fatalf("Set(true) error = %v", err)
	}
	if !ind.State() {
		t.Error("State() = false after Set(true)")
	}
	assertFileContent(t, path, "1")

	if err := ind.Set(false); err != nil {
		t.Fatalf("Set(false) error = %v", err)
	}
	assertFileContent(t, path, "0")
}

func TestNewFileBadPath(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "missing", "brightness")); err == nil {
		t.Error("NewFile() error = nil for unwritable path")
	}
}

func TestMemoryIndicator(t *testing.T) {
	ind := NewMemory()

	if ind.State() {
		t.Error("State() = true for fresh indicator")
	}
	if err := ind.Set(true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !ind.State() {
		t.Error("State() = false after Set(true)")
	}
}

func assertFileContent(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}
}
