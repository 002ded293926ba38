// Package softap controls the device's own discoverable network, used
// while the device awaits provisioning or has exhausted join retries.
//
// While the broadcast network is up, the controller also registers an
// mDNS service so provisioning clients on the network can locate the
// control API without knowing the gateway address.
package softap

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/logging"
	"github.com/renshaw/linkup/internal/version"
	"github.com/renshaw/linkup/internal/wifi"
)

const (
	// MDNSService is the service type provisioning clients browse for.
	MDNSService = "_linkup-cfg._tcp"

	// MDNSDomain is the mDNS domain.
	MDNSDomain = "local."
)

// APRadio is the slice of the radio interface the controller needs.
type APRadio interface {
	StartAccessPoint(cfg wifi.AccessPointConfig) error
	StopAccessPoint() error
}

// Controller starts and stops the provisioning broadcast network. Both
// operations are idempotent and safe to call while a station join
// attempt is independently in flight on the same radio.
type Controller struct {
	radio   APRadio
	cfg     wifi.AccessPointConfig
	apiPort int // control API port announced over mDNS; 0 disables announcement

	mu     sync.Mutex
	active bool
	mdns   *zeroconf.Server
}

// New creates a controller for the given broadcast configuration.
// apiPort is the control API's TCP port, announced to provisioning
// clients over mDNS while the broadcast network is up; pass 0 to
// disable the announcement.
func New(radio APRadio, cfg wifi.AccessPointConfig, apiPort int) *Controller {
	return &Controller{radio: radio, cfg: cfg, apiPort: apiPort}
}

// Start brings up the broadcast network. No-op if already running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return nil
	}

	if err := c.radio.StartAccessPoint(c.cfg); err != nil {
		return fmt.Errorf("start broadcast network: %w", err)
	}
	c.active = true

	logging.Info("Broadcast network started",
		zap.String("ssid", c.cfg.SSID),
		zap.Int("channel", c.cfg.Channel),
		zap.String("authmode", string(c.cfg.AuthMode())),
	)

	c.registerLocked()
	return nil
}

// Stop tears down the broadcast network. No-op if already stopped.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return nil
	}

	c.unregisterLocked()

	if err := c.radio.StopAccessPoint(); err != nil {
		return fmt.Errorf("stop broadcast network: %w", err)
	}
	c.active = false

	logging.Info("Broadcast network stopped", zap.String("ssid", c.cfg.SSID))
	return nil
}

// Active reports whether the broadcast network is up.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// registerLocked announces the control API over mDNS. Announcement
// failures are logged, not returned: the broadcast network itself is
// the reachability guarantee, the announcement is a convenience.
func (c *Controller) registerLocked() {
	if c.apiPort <= 0 {
		return
	}

	server, err := zeroconf.Register(
		c.cfg.SSID,
		MDNSService,
		MDNSDomain,
		c.apiPort,
		[]string{"version=" + version.Version, "path=/api"},
		nil,
	)
	if err != nil {
		logging.Warn("mDNS announcement failed", zap.Error(err))
		return
	}
	c.mdns = server

	logging.Info("mDNS service announced",
		zap.String("instance", c.cfg.SSID),
		zap.String("service", MDNSService),
		zap.Int("port", c.apiPort),
	)
}

func (c *Controller) unregisterLocked() {
	if c.mdns == nil {
		return
	}
	c.mdns.Shutdown()
	c.mdns = nil
}
