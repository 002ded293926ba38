package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/logging"
)

// ledState accepts both JSON booleans and the strings "on"/"off", the
// two request forms clients have historically sent.
type ledState struct {
	on bool
}

func (l *ledState) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		l.on = b
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "on":
			l.on = true
			return nil
		case "off":
			l.on = false
			return nil
		}
		return fmt.Errorf("invalid state %q: want true, false, \"on\", or \"off\"", s)
	}

	return fmt.Errorf("invalid state: want a boolean or \"on\"/\"off\"")
}

type ledStatusResponse struct {
	State bool `json:"state"`
}

// handleLEDStatus serves GET /api/led/status.
func (s *Server) handleLEDStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledStatusResponse{State: s.indicator.State()})
}

type ledControlRequest struct {
	State *ledState `json:"state"`
}

// handleLEDControl serves POST /api/led/control.
func (s *Server) handleLEDControl(w http.ResponseWriter, r *http.Request) {
	var req ledControlRequest
	if err := decodeBody(w, r, maxActionBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.State == nil {
		writeError(w, http.StatusBadRequest, "missing state field")
		return
	}

	if err := s.indicator.Set(req.State.on); err != nil {
		logging.Error("Failed to set indicator", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to set indicator")
		return
	}

	writeJSON(w, http.StatusOK, ackResponse{Success: true})
}
