// internal/dashboard/server.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/rpc"
)

// StatusSource отдаёт снимок состояния движка
type StatusSource interface {
	GetStatus() rpc.Status
}

// Server тонкая HTTP-обёртка над статусом движка и метриками
type Server struct {
	httpServer *http.Server
	source     StatusSource
	logger     *zap.Logger
}

// NewServer собирает маршруты; gatherer может быть nil, тогда /metrics не публикуется
func NewServer(addr string, source StatusSource, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		source: source,
		logger: logger.Named("dashboard"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rpc/status", s.handleStatus)
	mux.HandleFunc("GET /health", handleHealth)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Handler используется тестами и встраиванием в чужой mux
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start блокируется до Shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve обслуживает уже открытый listener
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting dashboard", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down dashboard")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.source.GetStatus(), s.logger)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func writeJSON(w http.ResponseWriter, v any, logger *zap.Logger) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode status", zap.Error(err))
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}
