package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/conn"
	"github.com/renshaw/linkup/internal/led"
	"github.com/renshaw/linkup/internal/logging"
	"github.com/renshaw/linkup/internal/webfs"
	"github.com/renshaw/linkup/internal/wifi"
)

const (
	// defaultScanTimeout bounds the synchronous scan endpoint.
	defaultScanTimeout = 4 * time.Second

	// shutdownTimeout bounds graceful shutdown before in-flight
	// requests are cut off.
	shutdownTimeout = 10 * time.Second
)

// StateMachine is the connectivity state machine as the API sees it:
// message-passing only, no shared fields.
type StateMachine interface {
	Status(ctx context.Context) (conn.Snapshot, error)
	SubmitCredentials(ctx context.Context, creds wifi.Credentials) error
	Retry(ctx context.Context) (noop bool, err error)
	Subscribe() (<-chan conn.Snapshot, func())
}

// Config holds the HTTP front end configuration.
type Config struct {
	ListenAddr  string
	ContentDir  string
	ScanTimeout time.Duration
}

// Server is the device's single HTTP front end: control API plus static
// content.
type Server struct {
	cfg         Config
	machine     StateMachine
	scanner     wifi.Scanner
	indicator   led.Indicator
	scanTimeout time.Duration
	handler     http.Handler
}

// New wires the routes. The wildcard static handler is registered last
// so the API paths win.
func New(cfg Config, machine StateMachine, scanner wifi.Scanner, indicator led.Indicator) *Server {
	s := &Server{
		cfg:         cfg,
		machine:     machine,
		scanner:     scanner,
		indicator:   indicator,
		scanTimeout: cfg.ScanTimeout,
	}
	if s.scanTimeout <= 0 {
		s.scanTimeout = defaultScanTimeout
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wifi/status", s.handleWifiStatus)
	mux.HandleFunc("GET /api/wifi/scan", s.handleWifiScan)
	mux.HandleFunc("POST /api/wifi/config", s.handleWifiConfig)
	mux.HandleFunc("POST /api/wifi/retry", s.handleWifiRetry)
	mux.HandleFunc("GET /api/led/status", s.handleLEDStatus)
	mux.HandleFunc("POST /api/led/control", s.handleLEDControl)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.Handle("/", webfs.New(cfg.ContentDir))

	s.handler = logRequests(mux)
	return s
}

// Handler returns the composed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP server listening", zap.String("addr", s.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so the websocket
// upgrade works behind the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}
