package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/renshaw/linkup/internal/wifi"
)

const currentVersion = 1

// Radio backend selectors for Config.Radio.Backend.
const (
	BackendNMCLI = "nmcli"
	BackendSim   = "sim"
)

// Config is the daemon configuration file.
type Config struct {
	Version    int    `yaml:"version"`
	ListenAddr string `yaml:"listen_addr,omitempty"`
	ContentDir string `yaml:"content_dir,omitempty"` // static content root
	StateDir   string `yaml:"state_dir,omitempty"`   // credential store location
	LEDPath    string `yaml:"led_path,omitempty"`    // brightness file; empty selects the in-memory indicator

	Radio   RadioConfig   `yaml:"radio,omitempty"`
	AP      APConfig      `yaml:"access_point,omitempty"`
	Station StationConfig `yaml:"station,omitempty"`
}

// RadioConfig selects and parameterizes the radio backend.
type RadioConfig struct {
	Backend   string `yaml:"backend,omitempty"` // "nmcli" or "sim"
	Interface string `yaml:"interface,omitempty"`
}

// APConfig describes the device's own provisioning network.
type APConfig struct {
	SSID       string `yaml:"ssid,omitempty"`
	Password   string `yaml:"password,omitempty"` // empty broadcasts an open network
	Channel    int    `yaml:"channel,omitempty"`
	MaxClients int    `yaml:"max_clients,omitempty"`
}

// StationConfig tunes the join retry policy.
type StationConfig struct {
	MaxRetries     int      `yaml:"max_retries,omitempty"`
	RetryBackoff   Duration `yaml:"retry_backoff,omitempty"`
	ReconnectDelay Duration `yaml:"reconnect_delay,omitempty"`
}

// Duration is a time.Duration that reads and writes in Go's duration
// syntax ("5s", "250ms") instead of raw nanoseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Version:    currentVersion,
		ListenAddr: ":8080",
		ContentDir: "/var/lib/linkup/www",
		StateDir:   "/var/lib/linkup",
		Radio: RadioConfig{
			Backend:   BackendNMCLI,
			Interface: "wlan0",
		},
		AP: APConfig{
			SSID:       "LINKUP-SETUP",
			Channel:    1,
			MaxClients: 4,
		},
		Station: StationConfig{
			MaxRetries:     3,
			RetryBackoff:   Duration(5 * time.Second),
			ReconnectDelay: Duration(time.Second),
		},
	}
}

// Load reads the configuration at path, applying defaults for any field
// the file leaves unset. A missing file is not an error; a malformed or
// invalid one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Version != currentVersion {
		return nil, fmt.Errorf("config %s: unsupported version %d", path, cfg.Version)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration's field constraints.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.Radio.Backend != BackendNMCLI && c.Radio.Backend != BackendSim {
		return fmt.Errorf("radio.backend must be %q or %q, got %q", BackendNMCLI, BackendSim, c.Radio.Backend)
	}
	if c.Radio.Backend == BackendNMCLI && c.Radio.Interface == "" {
		return fmt.Errorf("radio.interface must not be empty for the nmcli backend")
	}
	if c.AP.SSID == "" || len(c.AP.SSID) > wifi.MaxSSIDLen {
		return fmt.Errorf("access_point.ssid must be 1-%d bytes", wifi.MaxSSIDLen)
	}
	if c.AP.Password != "" && len(c.AP.Password) > wifi.MaxPasswordLen {
		return fmt.Errorf("access_point.password must be at most %d bytes", wifi.MaxPasswordLen)
	}
	if c.AP.Channel < 1 || c.AP.Channel > 13 {
		return fmt.Errorf("access_point.channel must be 1-13, got %d", c.AP.Channel)
	}
	if c.AP.MaxClients < 1 {
		return fmt.Errorf("access_point.max_clients must be at least 1, got %d", c.AP.MaxClients)
	}
	if c.Station.MaxRetries < 1 {
		return fmt.Errorf("station.max_retries must be at least 1, got %d", c.Station.MaxRetries)
	}
	if c.Station.RetryBackoff < 0 || c.Station.ReconnectDelay < 0 {
		return fmt.Errorf("station delays must not be negative")
	}
	return nil
}

// AccessPoint returns the broadcast network parameters in radio form.
func (c *Config) AccessPoint() wifi.AccessPointConfig {
	return wifi.AccessPointConfig{
		SSID:       c.AP.SSID,
		Password:   c.AP.Password,
		Channel:    c.AP.Channel,
		MaxClients: c.AP.MaxClients,
	}
}
