// Package led drives the device's status indicator output.
//
// The indicator is a single digital output, independent of connectivity
// state. On Linux devices it is exposed as a sysfs brightness file; an
// in-memory implementation backs the simulate mode and tests.
package led

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/logging"
)

// Indicator is the status indicator output.
type Indicator interface {
	// Set switches the indicator on or off.
	Set(on bool) error

	// State reports the last state applied.
	State() bool
}

// FileIndicator writes the indicator state to a sysfs-style brightness
// file ("1" on, "0" off).
type FileIndicator struct {
	path string

	mu sync.Mutex
	on bool
}

// NewFile creates a file-backed indicator and switches it off, matching
// the device's power-on state. A write failure here means the output is
// misconfigured and is returned to the caller (fatal at boot).
func NewFile(path string) (*FileIndicator, error) {
	ind := &FileIndicator{path: path}
	if err := ind.write(false); err != nil {
		return nil, fmt.Errorf("initialize indicator %s: %w", path, err)
	}
	return ind, nil
}

// Set implements Indicator.
func (i *FileIndicator) Set(on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.write(on); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	i.on = on
	logging.Debug("Indicator state changed", zap.Bool("on", on))
	return nil
}

// State implements Indicator.
func (i *FileIndicator) State() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.on
}

func (i *FileIndicator) write(on bool) error {
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	return os.WriteFile(i.path, value, 0644)
}

// Memory is an in-memory indicator for the simulate run mode and tests.
type Memory struct {
	mu sync.Mutex
	on bool
}

// NewMemory creates an in-memory indicator, initially off.
func NewMemory() *Memory {
	return &Memory{}
}

// Set implements Indicator.
func (m *Memory) Set(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = on
	logging.Debug("Indicator state changed", zap.Bool("on", on))
	return nil
}

// State implements Indicator.
func (m *Memory) State() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}
