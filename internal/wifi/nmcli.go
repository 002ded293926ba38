package wifi

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/logging"
)

const (
	// apConnectionName is the NetworkManager connection profile used for
	// the device's own broadcast network.
	apConnectionName = "linkup-ap"

	// defaultPollInterval is how often the link watcher samples the
	// interface state.
	defaultPollInterval = 2 * time.Second

	// commandTimeout bounds every nmcli invocation that has no caller
	// supplied deadline.
	commandTimeout = 15 * time.Second
)

// commandRunner executes a command and returns its combined output.
// Injectable so tests can run the radio without nmcli present.
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// NMCLIRadio drives a wireless interface through nmcli. Join attempts
// and access point control are translated into nmcli commands; link
// state changes are detected by a polling watcher and reported as
// events.
type NMCLIRadio struct {
	iface  string
	run    commandRunner
	events chan Event

	pollInterval time.Duration

	mu        sync.Mutex
	connected bool
	apActive  bool
	closed    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNMCLIRadio creates an nmcli-backed radio for the named interface
// and starts its link watcher.
func NewNMCLIRadio(iface string) *NMCLIRadio {
	r := &NMCLIRadio{
		iface:        iface,
		run:          execRunner,
		events:       make(chan Event, 16),
		pollInterval: defaultPollInterval,
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.watch(ctx)
	return r
}

// Events implements Radio.
func (r *NMCLIRadio) Events() <-chan Event {
	return r.events
}

// Join implements Radio. The nmcli connect command blocks until the
// association settles, so it runs on its own goroutine. This goroutine
// is the only source of attempt-failure events; a successful join is
// picked up by the link watcher as an up-edge.
func (r *NMCLIRadio) Join(creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("join: radio closed")
	}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		_, err := r.run(ctx, "nmcli", "device", "wifi", "connect", creds.SSID,
			"password", creds.Password, "ifname", r.iface)
		if err != nil {
			logging.Warn("nmcli join attempt failed",
				zap.String("iface", r.iface),
				zap.String("ssid", creds.SSID),
				zap.Error(err),
			)
			r.emit(Disconnected{Reason: err.Error()})
		}
	}()
	return nil
}

// StartAccessPoint implements Radio. A passphrase-protected network uses
// the nmcli hotspot shortcut; an open network needs an explicit profile
// because hotspot always generates WPA security.
func (r *NMCLIRadio) StartAccessPoint(cfg AccessPointConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if cfg.Password != "" {
		_, err := r.run(ctx, "nmcli", "device", "wifi", "hotspot",
			"ifname", r.iface,
			"con-name", apConnectionName,
			"ssid", cfg.SSID,
			"channel", strconv.Itoa(cfg.Channel),
			"password", cfg.Password)
		if err != nil {
			return fmt.Errorf("start access point: %w", err)
		}
		r.setAPActive(true)
		return nil
	}

	if _, err := r.run(ctx, "nmcli", "connection", "add",
		"type", "wifi",
		"ifname", r.iface,
		"con-name", apConnectionName,
		"autoconnect", "no",
		"ssid", cfg.SSID,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"802-11-wireless.channel", strconv.Itoa(cfg.Channel),
		"ipv4.method", "shared"); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	if _, err := r.run(ctx, "nmcli", "connection", "up", apConnectionName); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	r.setAPActive(true)
	return nil
}

func (r *NMCLIRadio) setAPActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apActive = active
	if active {
		// The broadcast profile owns the interface now; any station
		// link state is gone with it.
		r.connected = false
	}
}

// StopAccessPoint implements Radio. Missing profiles are tolerated so
// the operation stays idempotent.
func (r *NMCLIRadio) StopAccessPoint() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := r.run(ctx, "nmcli", "connection", "down", apConnectionName); err != nil {
		logging.Debug("nmcli connection down", zap.Error(err))
	}
	if _, err := r.run(ctx, "nmcli", "connection", "delete", apConnectionName); err != nil {
		logging.Debug("nmcli connection delete", zap.Error(err))
	}
	r.setAPActive(false)
	return nil
}

// Scan implements Radio.
func (r *NMCLIRadio) Scan(ctx context.Context) ([]Network, error) {
	out, err := r.run(ctx, "nmcli", "--rescan", "yes", "-t",
		"-f", "SSID,SIGNAL,SECURITY,CHAN",
		"device", "wifi", "list", "ifname", r.iface)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return parseScanOutput(out), nil
}

// Close implements Radio.
func (r *NMCLIRadio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	close(r.events)
	return nil
}

// watch polls the interface and synthesizes station link events from
// state edges: not-connected -> connected produces AddressAcquired, the
// reverse produces Disconnected for an established link that dropped.
// While the device's own broadcast profile holds the interface,
// NetworkManager reports it as connected with the hotspot's shared
// address, so no station events are synthesized at all. Attempt
// failures are reported only by the Join goroutine.
func (r *NMCLIRadio) watch(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *NMCLIRadio) poll(ctx context.Context) {
	r.mu.Lock()
	apActive := r.apActive
	r.mu.Unlock()
	if apActive {
		// The interface's "connected" state is the broadcast profile,
		// not a station link.
		return
	}

	cctx, cancel := context.WithTimeout(ctx, r.pollInterval)
	defer cancel()

	out, err := r.run(cctx, "nmcli", "-t", "-f", "GENERAL.STATE,IP4.ADDRESS",
		"device", "show", r.iface)
	if err != nil {
		logging.Debug("nmcli device show failed", zap.Error(err))
		return
	}

	connected, ip := parseDeviceShow(out)

	r.mu.Lock()
	wasConnected := r.connected
	r.connected = connected
	r.mu.Unlock()

	switch {
	case connected && !wasConnected:
		link := r.stationLink(cctx)
		r.emit(AddressAcquired{IP: ip, Link: link})
	case !connected && wasConnected:
		r.emit(Disconnected{Reason: "link lost"})
	}
}

// stationLink queries the active network's SSID, signal, and channel.
// Best effort: a partially filled LinkInfo is acceptable.
func (r *NMCLIRadio) stationLink(ctx context.Context) LinkInfo {
	out, err := r.run(ctx, "nmcli", "-t", "-f", "ACTIVE,SSID,SIGNAL,CHAN",
		"device", "wifi", "list", "ifname", r.iface)
	if err != nil {
		logging.Debug("nmcli wifi list failed", zap.Error(err))
		return LinkInfo{}
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := splitEscaped(line, ':')
		if len(fields) != 4 || fields[0] != "yes" {
			continue
		}
		signal, _ := strconv.Atoi(fields[2])
		channel, _ := strconv.Atoi(fields[3])
		return LinkInfo{SSID: fields[1], RSSI: signalToRSSI(signal), Channel: channel}
	}
	return LinkInfo{}
}

func (r *NMCLIRadio) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}

// parseDeviceShow extracts the connected flag and IPv4 address from
// `nmcli -t -f GENERAL.STATE,IP4.ADDRESS device show` output.
func parseDeviceShow(out string) (bool, net.IP) {
	var connected bool
	var ip net.IP
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch {
		case key == "GENERAL.STATE":
			// Format: "100 (connected)"
			code, _, _ := strings.Cut(strings.TrimSpace(value), " ")
			connected = code == "100"
		case strings.HasPrefix(key, "IP4.ADDRESS"):
			// Format: "192.168.1.120/24"
			addr, _, _ := strings.Cut(strings.TrimSpace(value), "/")
			if parsed := net.ParseIP(addr); parsed != nil {
				ip = parsed
			}
		}
	}
	return connected, ip
}

// parseScanOutput converts terse nmcli wifi list output into scan
// entries. Fields are colon separated with backslash escaping inside
// SSIDs.
func parseScanOutput(out string) []Network {
	var networks []Network
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := splitEscaped(line, ':')
		if len(fields) != 4 || fields[0] == "" {
			continue
		}
		signal, _ := strconv.Atoi(fields[1])
		channel, _ := strconv.Atoi(fields[3])
		networks = append(networks, Network{
			SSID:     fields[0],
			RSSI:     signalToRSSI(signal),
			AuthMode: parseSecurity(fields[2]),
			Channel:  channel,
		})
	}
	return networks
}

// signalToRSSI converts NetworkManager's 0-100 signal percentage to an
// approximate dBm value.
func signalToRSSI(signal int) int {
	return signal/2 - 100
}

// parseSecurity maps an nmcli SECURITY column onto an AuthMode.
func parseSecurity(security string) AuthMode {
	s := strings.TrimSpace(security)
	if s == "" || s == "--" {
		return AuthOpen
	}
	has := func(token string) bool {
		for _, part := range strings.Fields(s) {
			if part == token {
				return true
			}
		}
		return false
	}
	switch {
	case has("WPA3") && has("WPA2"):
		return AuthWPA2WPA3
	case has("WPA3"):
		return AuthWPA3
	case has("WPA2") && has("WPA1"):
		return AuthWPAWPA2
	case has("WPA2"):
		return AuthWPA2
	case has("WPA1"):
		return AuthWPA
	default:
		return AuthUnknown
	}
}

// splitEscaped splits a terse nmcli output line on sep, honoring
// backslash escapes (nmcli escapes separators inside SSIDs).
func splitEscaped(line string, sep byte) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == sep:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields
}
