package wifi

import (
	"context"
	"fmt"
)

const (
	// MaxSSIDLen is the 802.11 limit on SSID length in bytes.
	MaxSSIDLen = 32

	// MaxPasswordLen is the longest passphrase the radio layer accepts.
	MaxPasswordLen = 64
)

// Credentials is one network's join credentials.
type Credentials struct {
	SSID     string
	Password string
}

// Validate checks the credential length constraints. Both fields must be
// non-empty; the SSID is capped at 32 bytes and the passphrase at 64.
func (c Credentials) Validate() error {
	if c.SSID == "" {
		return fmt.Errorf("ssid must not be empty")
	}
	if len(c.SSID) > MaxSSIDLen {
		return fmt.Errorf("ssid too long: %d bytes (max %d)", len(c.SSID), MaxSSIDLen)
	}
	if c.Password == "" {
		return fmt.Errorf("password must not be empty")
	}
	if len(c.Password) > MaxPasswordLen {
		return fmt.Errorf("password too long: %d bytes (max %d)", len(c.Password), MaxPasswordLen)
	}
	return nil
}

// AuthMode is the security mode a network advertises.
type AuthMode string

const (
	AuthOpen     AuthMode = "open"
	AuthWPA      AuthMode = "wpa"
	AuthWPA2     AuthMode = "wpa2"
	AuthWPAWPA2  AuthMode = "wpa_wpa2"
	AuthWPA3     AuthMode = "wpa3"
	AuthWPA2WPA3 AuthMode = "wpa2_wpa3"
	AuthUnknown  AuthMode = "unknown"
)

// Network is one scan result entry.
type Network struct {
	SSID     string   `json:"ssid"`
	RSSI     int      `json:"rssi"`
	AuthMode AuthMode `json:"authmode"`
	Channel  int      `json:"channel"`
}

// LinkInfo describes the station link after an address was acquired.
type LinkInfo struct {
	SSID    string
	RSSI    int
	Channel int
}

// AccessPointConfig configures the device's own broadcast network.
type AccessPointConfig struct {
	SSID       string
	Password   string // empty means an open network
	Channel    int
	MaxClients int
}

// AuthMode returns the security mode the access point will advertise:
// open when no passphrase is configured, WPA2 otherwise.
func (c AccessPointConfig) AuthMode() AuthMode {
	if c.Password == "" {
		return AuthOpen
	}
	return AuthWPA2
}

// Radio is the narrow interface onto the wireless driver and IP stack.
//
// Join and the access point operations must be safe to invoke while the
// other mode is active on the same radio (dual-mode operation). A Join
// issued while a previous attempt is in flight supersedes it; there is
// no separate cancellation. Command errors returned synchronously
// indicate misconfiguration and are fatal at bring-up; failures that
// surface later (a join that times out) arrive as Disconnected events.
type Radio interface {
	// Events returns the radio's asynchronous event stream. The channel
	// is closed when the radio is shut down.
	Events() <-chan Event

	// Join starts or restarts a station join attempt with the given
	// credentials. The outcome is reported asynchronously as an
	// AddressAcquired or Disconnected event.
	Join(creds Credentials) error

	// StartAccessPoint brings up the device's own broadcast network.
	StartAccessPoint(cfg AccessPointConfig) error

	// StopAccessPoint tears down the broadcast network.
	StopAccessPoint() error

	// Scan performs a synchronous scan for nearby networks, bounded by
	// the context deadline.
	Scan(ctx context.Context) ([]Network, error)

	// Close releases the radio and closes the event channel.
	Close() error
}

// Scanner is the subset of Radio the control API needs for the
// scan endpoint.
type Scanner interface {
	Scan(ctx context.Context) ([]Network, error)
}
