package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/renshaw/linkup/internal/conn"
	"github.com/renshaw/linkup/internal/credstore"
	"github.com/renshaw/linkup/internal/led"
	"github.com/renshaw/linkup/internal/softap"
	"github.com/renshaw/linkup/internal/wifi"
)

var homeNetwork = wifi.SimNetwork{
	Network:  wifi.Network{SSID: "home", RSSI: -48, AuthMode: wifi.AuthWPA2, Channel: 6},
	Password: "secretpw",
}

type testEnv struct {
	server  *Server
	machine *conn.Machine
	radio   *wifi.SimRadio
	led     *led.Memory
}

func newTestEnv(t *testing.T, stored *wifi.Credentials, networks ...wifi.SimNetwork) *testEnv {
	t.Helper()

	store := credstore.New(t.TempDir())
	if stored != nil {
		if err := store.Save(*stored); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}

	radio := wifi.NewSimRadio(networks...)
	radio.SetJoinDelay(2 * time.Millisecond)
	ap := softap.New(radio, wifi.AccessPointConfig{SSID: "LINKUP-SETUP", Channel: 1}, 0)

	machine := conn.New(radio, store, ap, conn.Config{
		MaxRetries:     3,
		RetryBackoff:   10 * time.Millisecond,
		ReconnectDelay: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := machine.Start(ctx); err != nil {
		t.Fatalf("machine.Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		radio.Close()
	})

	contentDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(contentDir, "hello.txt"), []byte("hi there"), 0644); err != nil {
		t.Fatalf("writing content: %v", err)
	}

	indicator := led.NewMemory()
	server := New(Config{ContentDir: contentDir}, machine, radio, indicator)

	return &testEnv{server: server, machine: machine, radio: radio, led: indicator}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) getStatus(t *testing.T) statusResponse {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/wifi/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint returned %d", rec.Code)
	}
	var status statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	return status
}

func (e *testEnv) waitForState(t *testing.T, want string) statusResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		status := e.getStatus(t)
		if status.State == want {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %q, still %q", want, status.State)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStatusFreshBoot(t *testing.T) {
	env := newTestEnv(t, nil)

	status := env.getStatus(t)
	if status.Connected {
		t.Error("connected = true on fresh boot")
	}
	if status.State != "ap_active" {
		t.Errorf("state = %q, want ap_active", status.State)
	}
	if !status.APEnabled {
		t.Error("ap_enabled = false on fresh boot")
	}
	if status.SSID != "" {
		t.Errorf("ssid = %q while disconnected, want omitted", status.SSID)
	}
}

func TestProvisioningFlow(t *testing.T) {
	env := newTestEnv(t, nil, homeNetwork)

	rec := env.do(t, http.MethodPost, "/api/wifi/config", `{"ssid":"home","password":"secretpw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("config returned %d: %s", rec.Code, rec.Body.String())
	}
	var ack ackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if !ack.Success {
		t.Errorf("success = false: %s", ack.Message)
	}

	// Broadcast stops as soon as the submission is accepted.
	if status := env.getStatus(t); status.APEnabled {
		t.Error("ap_enabled = true right after credential submission")
	}

	status := env.waitForState(t, "connected")
	if !status.Connected || status.SSID != "home" {
		t.Errorf("status = %+v, want connected to home", status)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty ssid", `{"ssid":"","password":"secretpw"}`},
		{"missing ssid", `{"password":"secretpw"}`},
		{"empty password", `{"ssid":"home","password":""}`},
		{"ssid 33 bytes", fmt.Sprintf(`{"ssid":%q,"password":"secretpw"}`, strings.Repeat("a", 33))},
		{"password 65 bytes", fmt.Sprintf(`{"ssid":"home","password":%q}`, strings.Repeat("b", 65))},
		{"not json", `ssid=home`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, homeNetwork)

			rec := env.do(t, http.MethodPost, "/api/wifi/config", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			// No state change happened.
			if status := env.getStatus(t); status.State != "ap_active" {
				t.Errorf("state = %q after rejected submission, want ap_active", status.State)
			}
		})
	}
}

func TestConfigBoundaryLengthsAccepted(t *testing.T) {
	ssid := strings.Repeat("s", 32)
	password := strings.Repeat("p", 64)
	env := newTestEnv(t, nil, wifi.SimNetwork{
		Network:  wifi.Network{SSID: ssid, RSSI: -50, AuthMode: wifi.AuthWPA2, Channel: 1},
		Password: password,
	})

	body := fmt.Sprintf(`{"ssid":%q,"password":%q}`, ssid, password)
	rec := env.do(t, http.MethodPost, "/api/wifi/config", body)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d for boundary lengths, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestConfigBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, nil)

	body := fmt.Sprintf(`{"ssid":"home","password":"secretpw","padding":%q}`, strings.Repeat("x", 1024))
	rec := env.do(t, http.MethodPost, "/api/wifi/config", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for oversized body, want 400", rec.Code)
	}
}

func TestRetryActionToken(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid token", `{"action":"retry"}`, http.StatusOK},
		{"wrong token", `{"action":"reboot"}`, http.StatusBadRequest},
		{"missing token", `{}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &wifi.Credentials{SSID: "home", Password: "secretpw"}, homeNetwork)

			rec := env.do(t, http.MethodPost, "/api/wifi/retry", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestRetryNoopWhenConnected(t *testing.T) {
	env := newTestEnv(t, &wifi.Credentials{SSID: "home", Password: "secretpw"}, homeNetwork)
	env.waitForState(t, "connected")

	rec := env.do(t, http.MethodPost, "/api/wifi/retry", `{"action":"retry"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var ack ackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if !ack.Success || !strings.Contains(ack.Message, "nothing to retry") {
		t.Errorf("ack = %+v, want no-op acknowledgement", ack)
	}

	if status := env.getStatus(t); status.State != "connected" {
		t.Errorf("state = %q after no-op retry, want connected", status.State)
	}
}

func TestRetryWithoutCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/wifi/retry", `{"action":"retry"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExhaustedRetriesVisibleInStatus(t *testing.T) {
	// Stored network that no longer exists.
	env := newTestEnv(t, &wifi.Credentials{SSID: "home", Password: "secretpw"})

	status := env.waitForState(t, "failed_ap_active")
	if status.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", status.RetryCount)
	}
	if !status.APEnabled {
		t.Error("ap_enabled = false in fallback")
	}
}

func TestScan(t *testing.T) {
	networks := make([]wifi.SimNetwork, 0, 25)
	for i := 0; i < 25; i++ {
		networks = append(networks, wifi.SimNetwork{
			Network: wifi.Network{
				SSID:     fmt.Sprintf("net-%02d", i),
				RSSI:     -30 - i,
				AuthMode: wifi.AuthWPA2,
				Channel:  1 + i%13,
			},
		})
	}
	env := newTestEnv(t, nil, networks...)

	rec := env.do(t, http.MethodGet, "/api/wifi/scan", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp scanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding scan response: %v", err)
	}
	if len(resp.Networks) != 20 {
		t.Errorf("len(networks) = %d, want cap of 20", len(resp.Networks))
	}
	for i := 1; i < len(resp.Networks); i++ {
		if resp.Networks[i-1].RSSI < resp.Networks[i].RSSI {
			t.Errorf("networks not ordered by signal strength at %d", i)
			break
		}
	}
	if resp.Networks[0].SSID != "net-00" {
		t.Errorf("strongest network = %q, want net-00", resp.Networks[0].SSID)
	}
}

type failingScanner struct{}

func (failingScanner) Scan(ctx context.Context) ([]wifi.Network, error) {
	return nil, fmt.Errorf("radio busy")
}

func TestScanFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	server := New(Config{ContentDir: t.TempDir()}, env.machine, failingScanner{}, env.led)

	req := httptest.NewRequest(http.MethodGet, "/api/wifi/scan", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestLEDControl(t *testing.T) {
	env := newTestEnv(t, nil)

	assertLED := func(want bool) {
		t.Helper()
		rec := env.do(t, http.MethodGet, "/api/led/status", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("led status returned %d", rec.Code)
		}
		var resp ledStatusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding led status: %v", err)
		}
		if resp.State != want {
			t.Errorf("led state = %v, want %v", resp.State, want)
		}
	}

	assertLED(false)

	for _, body := range []string{`{"state":true}`, `{"state":"on"}`} {
		if rec := env.do(t, http.MethodPost, "/api/led/control", body); rec.Code != http.StatusOK {
			t.Fatalf("led control %s returned %d", body, rec.Code)
		}
		assertLED(true)
		if rec := env.do(t, http.MethodPost, "/api/led/control", `{"state":"off"}`); rec.Code != http.StatusOK {
			t.Fatalf("led control off returned %d", rec.Code)
		}
		assertLED(false)
	}
}

func TestLEDControlInvalid(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []string{`{"state":"blink"}`, `{"state":5}`, `{}`, ``} {
		rec := env.do(t, http.MethodPost, "/api/led/control", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("led control %q returned %d, want 400", body, rec.Code)
		}
	}
}

func TestStaticContentFallthrough(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/hello.txt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hi there" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil, homeNetwork)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing event stream: %v", err)
	}
	defer ws.Close()

	// First frame is the current status.
	var first statusResponse
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("reading initial snapshot: %v", err)
	}
	if first.State != "ap_active" {
		t.Errorf("initial state = %q, want ap_active", first.State)
	}

	// Drive a provisioning flow and watch it on the stream.
	resp, err := http.Post(ts.URL+"/api/wifi/config", "application/json",
		bytes.NewReader([]byte(`{"ssid":"home","password":"secretpw"}`)))
	if err != nil {
		t.Fatalf("posting config: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("never observed connected snapshot on event stream")
		}
		var update statusResponse
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := ws.ReadJSON(&update); err != nil {
			t.Fatalf("reading update: %v", err)
		}
		if update.State == "connected" {
			if update.SSID != "home" {
				t.Errorf("connected ssid = %q, want home", update.SSID)
			}
			return
		}
	}
}
