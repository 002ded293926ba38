package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/conn"
	"github.com/renshaw/linkup/internal/logging"
)

// ackResponse acknowledges an accepted or rejected intent.
type ackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// statusResponse is the wire form of a status snapshot.
type statusResponse struct {
	Connected  bool   `json:"connected"`
	State      string `json:"state"`
	RetryCount int    `json:"retry_count"`
	APEnabled  bool   `json:"ap_enabled"`
	SSID       string `json:"ssid,omitempty"`
	RSSI       int    `json:"rssi,omitempty"`
	Channel    int    `json:"channel,omitempty"`
	IP         string `json:"ip,omitempty"`
}

func statusFromSnapshot(snap conn.Snapshot) statusResponse {
	return statusResponse{
		Connected:  snap.Connected,
		State:      snap.State.String(),
		RetryCount: snap.RetryCount,
		APEnabled:  snap.APEnabled,
		SSID:       snap.SSID,
		RSSI:       snap.RSSI,
		Channel:    snap.Channel,
		IP:         snap.IP,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ackResponse{Success: false, Message: msg})
}

// decodeBody parses a size-capped JSON request body into v. Oversized
// bodies and malformed JSON both come back as client errors before any
// state is touched.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", limit)
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}
