package wifi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// SimNetwork is one entry in the simulated radio's environment.
type SimNetwork struct {
	Network
	Password string // empty for open networks
}

// SimRadio is an in-memory Radio with a configurable network table.
// Join outcomes are deterministic: an attempt succeeds when the SSID is
// present in the table and the passphrase matches (or the network is
// open), and fails otherwise.
type SimRadio struct {
	mu        sync.Mutex
	networks  []SimNetwork
	events    chan Event
	joinDelay time.Duration
	joinGen   int
	apActive  bool
	apConfig  AccessPointConfig
	station   *LinkInfo
	closed    bool
}

// NewSimRadio creates a simulated radio seeing the given networks.
func NewSimRadio(networks ...SimNetwork) *SimRadio {
	return &SimRadio{
		networks:  networks,
		events:    make(chan Event, 16),
		joinDelay: 10 * time.Millisecond,
	}
}

// SetJoinDelay overrides the simulated association latency.
func (r *SimRadio) SetJoinDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinDelay = d
}

// Events implements Radio.
func (r *SimRadio) Events() <-chan Event {
	return r.events
}

// Join implements Radio. The outcome event is emitted after the
// configured join delay. A newer Join supersedes any pending one.
func (r *SimRadio) Join(creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("join: radio closed")
	}
	r.joinGen++
	gen := r.joinGen
	delay := r.joinDelay
	r.mu.Unlock()

	time.AfterFunc(delay, func() {
		r.completeJoin(gen, creds)
	})
	return nil
}

func (r *SimRadio) completeJoin(gen int, creds Credentials) {
	r.mu.Lock()
	if r.closed || gen != r.joinGen {
		// Superseded by a newer attempt or shut down.
		r.mu.Unlock()
		return
	}

	var target *SimNetwork
	for i := range r.networks {
		if r.networks[i].SSID == creds.SSID {
			target = &r.networks[i]
			break
		}
	}

	switch {
	case target == nil:
		r.mu.Unlock()
		r.emit(Disconnected{Reason: "no such network: " + creds.SSID})
	case target.Password != "" && target.Password != creds.Password:
		r.mu.Unlock()
		r.emit(Disconnected{Reason: "association failed: bad passphrase"})
	default:
		link := LinkInfo{SSID: target.SSID, RSSI: target.RSSI, Channel: target.Channel}
		r.station = &link
		r.mu.Unlock()
		r.emit(AddressAcquired{IP: net.IPv4(192, 168, 1, 120), Link: link})
	}
}

// DropLink simulates losing an established station link or a timed-out
// join attempt.
func (r *SimRadio) DropLink(reason string) {
	r.mu.Lock()
	r.station = nil
	r.mu.Unlock()
	r.emit(Disconnected{Reason: reason})
}

// ClientJoin simulates a client associating with the broadcast network.
func (r *SimRadio) ClientJoin(mac string) {
	r.emit(ClientJoined{MAC: mac})
}

// ClientLeave simulates a client leaving the broadcast network.
func (r *SimRadio) ClientLeave(mac string) {
	r.emit(ClientLeft{MAC: mac})
}

// StartAccessPoint implements Radio.
func (r *SimRadio) StartAccessPoint(cfg AccessPointConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("start access point: radio closed")
	}
	r.apActive = true
	r.apConfig = cfg
	return nil
}

// StopAccessPoint implements Radio.
func (r *SimRadio) StopAccessPoint() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("stop access point: radio closed")
	}
	r.apActive = false
	return nil
}

// APActive reports whether the simulated broadcast network is up.
func (r *SimRadio) APActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apActive
}

// APConfig returns the last access point configuration applied.
func (r *SimRadio) APConfig() AccessPointConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apConfig
}

// Scan implements Radio. It returns the environment table.
func (r *SimRadio) Scan(ctx context.Context) ([]Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("scan: radio closed")
	}
	out := make([]Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n.Network)
	}
	return out, nil
}

// Close implements Radio.
func (r *SimRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.events)
	return nil
}

func (r *SimRadio) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		// Event buffer full; the consumer has stalled. Drop rather
		// than block the simulated driver.
	}
}
