// Package conn owns the device's connectivity state: whether it is
// attempting to join the target network, has joined it, or is hosting
// its own broadcast network for provisioning.
//
// All mutable state lives on a single goroutine. Radio events and user
// intents from the control API are delivered into that goroutine as
// messages; callers never touch the fields directly, which keeps the
// multi-field status snapshot tear-free without locking.
//
// The central safety invariant: once join retries are exhausted, the
// device is always reachable over its own broadcast network. The
// machine can never end up both disconnected and not broadcasting.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/credstore"
	"github.com/renshaw/linkup/internal/logging"
	"github.com/renshaw/linkup/internal/wifi"
)

const (
	// DefaultMaxRetries bounds automatic join attempts per credential
	// set before falling back to broadcast mode.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the pause between failed join attempts.
	DefaultRetryBackoff = 5 * time.Second

	// DefaultReconnectDelay is the brief pause before rejoining after
	// an established connection drops.
	DefaultReconnectDelay = 1 * time.Second
)

// ErrStopped is returned by intent methods after the machine has shut
// down.
var ErrStopped = errors.New("state machine stopped")

// ErrNoCredentials is returned by Retry when no credentials have ever
// been stored, so there is nothing to retry against.
var ErrNoCredentials = errors.New("no stored credentials")

// Broadcast is the provisioning broadcast controller as the machine
// sees it.
type Broadcast interface {
	Start() error
	Stop() error
	Active() bool
}

// Config tunes the retry policy. Zero values fall back to the defaults.
type Config struct {
	MaxRetries     int
	RetryBackoff   time.Duration
	ReconnectDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	return c
}

// intent is a message delivered into the machine's loop. The concrete
// types form a closed set.
type intent interface {
	machineIntent()
}

type submitIntent struct {
	creds wifi.Credentials
	reply chan error
}

type retryIntent struct {
	reply chan retryResult
}

type retryResult struct {
	noop bool
	err  error
}

type statusIntent struct {
	reply chan Snapshot
}

// rejoinIntent is the scheduled re-entry posted by a backoff or
// reconnect timer. gen guards against stale timers: user intents bump
// the generation, invalidating timers armed before them.
type rejoinIntent struct {
	gen int
}

func (submitIntent) machineIntent() {}
func (retryIntent) machineIntent()  {}
func (statusIntent) machineIntent() {}
func (rejoinIntent) machineIntent() {}

// Machine is the connectivity state machine.
type Machine struct {
	radio wifi.Radio
	store *credstore.Store
	ap    Broadcast
	cfg   Config

	intents chan intent
	done    chan struct{}

	// Loop-owned fields. Only the run goroutine touches these after
	// Start returns.
	state    State
	retries  int
	creds    wifi.Credentials
	hasCreds bool
	link     wifi.LinkInfo
	ip       string
	gen      int

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

// New creates a machine. Call Start to boot it.
func New(radio wifi.Radio, store *credstore.Store, ap Broadcast, cfg Config) *Machine {
	return &Machine{
		radio:   radio,
		store:   store,
		ap:      ap,
		cfg:     cfg.withDefaults(),
		intents: make(chan intent),
		done:    make(chan struct{}),
		subs:    make(map[chan Snapshot]struct{}),
	}
}

// Start performs boot synchronously and launches the event loop. Any
// error here (malformed persisted record, radio or broadcast bring-up
// failure) is a configuration error and the caller must abort startup.
func (m *Machine) Start(ctx context.Context) error {
	creds, ok, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	if ok {
		m.creds = creds
		m.hasCreds = true
		m.state = StateConnecting
		if err := m.radio.Join(creds); err != nil {
			return fmt.Errorf("boot: %w", err)
		}
		logging.Info("Booting with stored credentials",
			zap.String("ssid", creds.SSID),
			zap.String("state", m.state.String()),
		)
	} else {
		m.state = StateProvisioning
		if err := m.ap.Start(); err != nil {
			return fmt.Errorf("boot: %w", err)
		}
		logging.Info("Booting without credentials, awaiting provisioning",
			zap.String("state", m.state.String()),
		)
	}

	go m.run(ctx)
	return nil
}

// Done is closed when the machine's loop has exited.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func (m *Machine) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.radio.Events():
			if !ok {
				return
			}
			m.handleEvent(ev)
		case in := <-m.intents:
			m.handleIntent(in)
		}
	}
}

// handleEvent is the single transition function for radio events.
func (m *Machine) handleEvent(ev wifi.Event) {
	switch ev := ev.(type) {
	case wifi.Disconnected:
		logging.LogRadioEvent("disconnected", zap.String("reason", ev.Reason))
		m.handleDisconnected()
	case wifi.AddressAcquired:
		logging.LogRadioEvent("address_acquired",
			zap.String("ip", ev.IP.String()),
			zap.String("ssid", ev.Link.SSID),
		)
		m.handleAddressAcquired(ev)
	case wifi.ClientJoined:
		logging.Info("Client joined broadcast network", zap.String("mac", ev.MAC))
	case wifi.ClientLeft:
		logging.Info("Client left broadcast network", zap.String("mac", ev.MAC))
	}
}

func (m *Machine) handleDisconnected() {
	switch m.state {
	case StateConnected:
		// Established link dropped: brief pause, then reissue the join.
		m.link = wifi.LinkInfo{}
		m.ip = ""
		m.transition(StateConnecting)
		m.scheduleRejoin(m.cfg.ReconnectDelay)

	case StateConnecting:
		m.retries++
		if m.retries < m.cfg.MaxRetries {
			logging.Info("Join attempt failed, retrying",
				zap.Int("retry_count", m.retries),
				zap.Int("max_retries", m.cfg.MaxRetries),
				zap.Duration("backoff", m.cfg.RetryBackoff),
			)
			m.scheduleRejoin(m.cfg.RetryBackoff)
			m.publish()
			return
		}
		// Retries exhausted: become reachable over our own network.
		// The counter keeps its terminal value until a user intent
		// resets it.
		if err := m.ap.Start(); err != nil {
			logging.Error("Failed to start fallback broadcast network", zap.Error(err))
		}
		m.transition(StateFallback)

	default:
		// Disconnect noise while broadcasting; nothing to do.
		logging.Debug("Ignoring disconnect event",
			zap.String("state", m.state.String()),
		)
	}
}

func (m *Machine) handleAddressAcquired(ev wifi.AddressAcquired) {
	switch m.state {
	case StateConnecting, StateFallback:
		// A join settled. From StateFallback this is a superseded
		// attempt completing late; the device is demonstrably on the
		// target network, so take the connection.
		m.retries = 0
		m.link = ev.Link
		m.ip = ev.IP.String()
		if m.ap.Active() {
			if err := m.ap.Stop(); err != nil {
				logging.Error("Failed to stop broadcast network", zap.Error(err))
			}
		}
		m.transition(StateConnected)

	case StateConnected:
		// Address renewed or link details changed.
		m.link = ev.Link
		m.ip = ev.IP.String()
		m.publish()

	default:
		logging.Warn("Unexpected address acquisition",
			zap.String("state", m.state.String()),
		)
	}
}

func (m *Machine) handleIntent(in intent) {
	switch in := in.(type) {
	case statusIntent:
		in.reply <- m.snapshot()

	case submitIntent:
		in.reply <- m.handleSubmit(in.creds)

	case retryIntent:
		in.reply <- m.handleRetry()

	case rejoinIntent:
		if in.gen != m.gen {
			// Timer armed before a user intent superseded it.
			logging.Debug("Discarding stale rejoin timer")
			return
		}
		if m.state != StateConnecting || !m.hasCreds {
			return
		}
		if err := m.radio.Join(m.creds); err != nil {
			logging.Error("Join command failed", zap.Error(err))
			m.handleDisconnected()
		}
	}
}

func (m *Machine) handleSubmit(creds wifi.Credentials) error {
	if err := m.store.Save(creds); err != nil {
		// Persisting failed: report it and leave the machine alone.
		return err
	}

	m.creds = creds
	m.hasCreds = true
	m.retries = 0
	m.gen++

	if m.ap.Active() {
		if err := m.ap.Stop(); err != nil {
			logging.Error("Failed to stop broadcast network", zap.Error(err))
		}
	}

	m.transition(StateConnecting)
	if err := m.radio.Join(creds); err != nil {
		logging.Error("Join command failed", zap.Error(err))
		m.handleDisconnected()
	}
	return nil
}

func (m *Machine) handleRetry() retryResult {
	if m.state == StateConnected {
		return retryResult{noop: true}
	}
	if !m.hasCreds {
		return retryResult{err: ErrNoCredentials}
	}

	m.retries = 0
	m.gen++

	if m.ap.Active() {
		if err := m.ap.Stop(); err != nil {
			logging.Error("Failed to stop broadcast network", zap.Error(err))
		}
	}

	m.transition(StateConnecting)
	if err := m.radio.Join(m.creds); err != nil {
		logging.Error("Join command failed", zap.Error(err))
		m.handleDisconnected()
	}
	return retryResult{}
}

// scheduleRejoin arms a timer that posts a rejoin message back into the
// loop, so the loop is never parked inside its own event path. The
// current generation is captured; intents arming between now and the
// timer firing invalidate it.
func (m *Machine) scheduleRejoin(d time.Duration) {
	gen := m.gen
	time.AfterFunc(d, func() {
		select {
		case m.intents <- rejoinIntent{gen: gen}:
		case <-m.done:
		}
	})
}

func (m *Machine) transition(to State) {
	from := m.state
	m.state = to
	if from != to {
		logging.LogStateTransition(from.String(), to.String(), m.retries, m.ap.Active())
	}
	m.publish()
}

func (m *Machine) snapshot() Snapshot {
	s := Snapshot{
		State:      m.state,
		Connected:  m.state == StateConnected,
		RetryCount: m.retries,
		APEnabled:  m.ap.Active(),
	}
	if s.Connected {
		s.SSID = m.link.SSID
		s.RSSI = m.link.RSSI
		s.Channel = m.link.Channel
		s.IP = m.ip
	}
	return s
}

// Status returns a snapshot of the machine's current fields.
func (m *Machine) Status(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := m.deliver(ctx, statusIntent{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-m.done:
		return Snapshot{}, ErrStopped
	}
}

// SubmitCredentials validates, persists, and applies new credentials,
// then starts a fresh join attempt.
func (m *Machine) SubmitCredentials(ctx context.Context, creds wifi.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := m.deliver(ctx, submitIntent{creds: creds, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// Retry requests a manual join retry. When the device is already
// connected the request is a no-op and noop is true.
func (m *Machine) Retry(ctx context.Context) (noop bool, err error) {
	reply := make(chan retryResult, 1)
	if err := m.deliver(ctx, retryIntent{reply: reply}); err != nil {
		return false, err
	}
	select {
	case res := <-reply:
		return res.noop, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-m.done:
		return false, ErrStopped
	}
}

func (m *Machine) deliver(ctx context.Context, in intent) error {
	select {
	case m.intents <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// Subscribe registers for a snapshot on every state machine change.
// Slow subscribers miss snapshots rather than stalling the machine.
// The returned cancel function releases the subscription and closes the
// channel.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (m *Machine) publish() {
	snap := m.snapshot()
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
