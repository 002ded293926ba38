// Package credstore persists the target network's join credentials
// across reboots.
//
// The store holds exactly one record, overwrite-only. Saves are atomic
// (temp file plus rename) so a crash mid-write can never leave a record
// that loads as valid but wrong; a record missing either field is
// rejected at load time.
package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/renshaw/linkup/internal/wifi"
)

const (
	// storeVersion is the on-disk record version, checked on load to
	// allow future migration.
	storeVersion = 1

	fileName = "credentials.yaml"
)

// record is the on-disk layout.
type record struct {
	Version  int    `yaml:"version"`
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// Store reads and writes the single credential record under a state
// directory.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store rooted at the given state directory.
func New(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, fileName)}
}

// Path returns the record's location on disk.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored credentials. An absent record is a valid,
// distinct condition reported as ok=false with no error. A record that
// is present but malformed (unparseable, wrong version, or missing a
// field) is an error; the caller treats that as fatal at boot.
func (s *Store) Load() (wifi.Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return wifi.Credentials{}, false, nil
	}
	if err != nil {
		return wifi.Credentials{}, false, fmt.Errorf("read credential record: %w", err)
	}

	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return wifi.Credentials{}, false, fmt.Errorf("parse credential record: %w", err)
	}
	if rec.Version != storeVersion {
		return wifi.Credentials{}, false, fmt.Errorf("unsupported credential record version: %d (expected %d)", rec.Version, storeVersion)
	}
	if rec.SSID == "" || rec.Password == "" {
		return wifi.Credentials{}, false, fmt.Errorf("credential record incomplete: both ssid and password are required")
	}

	return wifi.Credentials{SSID: rec.SSID, Password: rec.Password}, true, nil
}

// Save overwrites the stored record. The identifier and secret are
// written as one transactional unit: marshal to a temp file in the same
// directory, then rename over the record.
func (s *Store) Save(creds wifi.Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(record{
		Version:  storeVersion,
		SSID:     creds.SSID,
		Password: creds.Password,
	})
	if err != nil {
		return fmt.Errorf("marshal credential record: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary credential record: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save credential record: %w", err)
	}

	return nil
}
