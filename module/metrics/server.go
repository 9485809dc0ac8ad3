package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the registered collectors on /metrics and, optionally, the
// pprof handlers on /debug/pprof/.
type Server struct {
	log    zerolog.Logger
	addr   string
	server *http.Server
}

func NewServer(log zerolog.Logger, port uint, enableProfiler bool) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if enableProfiler {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}
	addr := fmt.Sprintf(":%d", port)
	return &Server{
		log:    log.With().Str("component", "metrics_server").Str("address", addr).Logger(),
		addr:   addr,
		server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}
}

// Ready binds the listener and serves in the background. The channel closes
// once the port is bound, or right away if binding failed.
func (m *Server) Ready() <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		defer close(ready)
		listener, err := net.Listen("tcp", m.addr)
		if err != nil {
			m.log.Error().Err(err).Msg("could not bind metrics server")
			return
		}
		m.log.Info().Msg("metrics server started")
		go func() {
			err := m.server.Serve(listener)
			if errors.Is(err, http.ErrServerClosed) {
				m.log.Debug().Msg("metrics server shut down")
				return
			}
			m.log.Error().Err(err).Msg("metrics server failed")
		}()
	}()
	return ready
}

// Done shuts the server down, waiting at most shutdownTimeout for open
// requests.
func (m *Server) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = m.server.Shutdown(ctx)
	}()
	return done
}
