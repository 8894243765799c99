package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc returns a JSON-encodable status snapshot. It is called from
// HTTP goroutines and must be safe for concurrent use.
type StatusFunc func() any

// NewRouter returns the admin routes:
//
//	GET /metrics  Prometheus exposition
//	GET /healthz  liveness, always "ok"
//	GET /status   status snapshot as JSON (404 when status is nil)
func NewRouter(m *Metrics, status StatusFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if reg := m.Registry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if status != nil {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(status())
		})
	}
	return r
}

// AdminServer serves an admin router on its own goroutine.
type AdminServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// ListenAdmin binds address and starts serving handler.
func ListenAdmin(address string, handler http.Handler, logger *slog.Logger) (*AdminServer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	a := &AdminServer{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server stopped", "error", err)
		}
	}()
	logger.Info("admin server listening", "address", ln.Addr().String())
	return a, nil
}

// Addr returns the bound address.
func (a *AdminServer) Addr() net.Addr {
	return a.ln.Addr()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}
