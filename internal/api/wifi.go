package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/conn"
	"github.com/renshaw/linkup/internal/logging"
	"github.com/renshaw/linkup/internal/wifi"
)

const (
	// maxConfigBody caps the credential submission body. SSID and
	// passphrase together can never legitimately need more.
	maxConfigBody = 512

	// maxActionBody caps the retry action body.
	maxActionBody = 128

	// retryAction is the fixed token a manual retry request must carry.
	retryAction = "retry"

	// maxScanResults caps the scan response size.
	maxScanResults = 20
)

// handleWifiStatus serves GET /api/wifi/status.
func (s *Server) handleWifiStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.machine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statusFromSnapshot(snap))
}

type configRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// handleWifiConfig serves POST /api/wifi/config.
func (s *Server) handleWifiConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeBody(w, r, maxConfigBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	creds := wifi.Credentials{SSID: req.SSID, Password: req.Password}
	if err := creds.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.machine.SubmitCredentials(r.Context(), creds); err != nil {
		logging.Error("Credential submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to apply credentials")
		return
	}

	writeJSON(w, http.StatusOK, ackResponse{
		Success: true,
		Message: "connecting to network",
	})
}

type retryRequest struct {
	Action string `json:"action"`
}

// handleWifiRetry serves POST /api/wifi/retry.
func (s *Server) handleWifiRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := decodeBody(w, r, maxActionBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Action != retryAction {
		writeError(w, http.StatusBadRequest, `action must be "retry"`)
		return
	}

	noop, err := s.machine.Retry(r.Context())
	switch {
	case errors.Is(err, conn.ErrNoCredentials):
		writeError(w, http.StatusBadRequest, "no stored credentials to retry")
		return
	case err != nil:
		logging.Error("Manual retry failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "retry unavailable")
		return
	}

	msg := "retrying connection"
	if noop {
		msg = "already connected; nothing to retry"
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: msg})
}

type scanResponse struct {
	Networks []wifi.Network `json:"networks"`
}

// handleWifiScan serves GET /api/wifi/scan. The scan runs synchronously
// against the radio with a bounded deadline, strongest signal first.
func (s *Server) handleWifiScan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.scanTimeout)
	defer cancel()

	networks, err := s.scanner.Scan(ctx)
	if err != nil {
		logging.Error("Network scan failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	sort.SliceStable(networks, func(i, j int) bool {
		return networks[i].RSSI > networks[j].RSSI
	})
	if len(networks) > maxScanResults {
		networks = networks[:maxScanResults]
	}
	if networks == nil {
		networks = []wifi.Network{}
	}

	writeJSON(w, http.StatusOK, scanResponse{Networks: networks})
}
