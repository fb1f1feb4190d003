// Package health exposes the liveness/readiness probe and the Prometheus
// metrics endpoint on their own port, separate from the broadcast surface.
package health

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muhammetakkurtt/alpha-stream/pkg/version"
)

// Response is the probe payload.
type Response struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Connection string `json:"connection,omitempty"`
}

// ConnectionStateFunc reports the upstream connection state for the probe.
type ConnectionStateFunc func() string

// Server is the health endpoint.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	ready      atomic.Bool
	connState  ConnectionStateFunc
}

// NewServer creates the health server. gatherer backs /metrics; connState
// may be nil.
func NewServer(gatherer prometheus.Gatherer, connState ConnectionStateFunc) *Server {
	s := &Server{
		echo:      echo.New(),
		connState: connState,
	}
	s.echo.GET("/healthz", s.livenessHandler)
	s.echo.GET("/readyz", s.readinessHandler)
	s.echo.GET("/metrics", func(c *echo.Context) error {
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Response(), c.Request())
		return nil
	})
	return s
}

// SetReady flips the readiness probe; called once the pipeline is running.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// livenessHandler always reports the process alive. A disconnected upstream
// degrades the status but never fails the probe: the sinks keep running.
func (s *Server) livenessHandler(c *echo.Context) error {
	resp := Response{Status: "healthy", Version: version.Full()}
	if s.connState != nil {
		resp.Connection = s.connState()
		if resp.Connection != "connected" {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) readinessHandler(c *echo.Context) error {
	if !s.ready.Load() {
		return c.JSON(http.StatusServiceUnavailable, Response{Status: "starting", Version: version.Full()})
	}
	return c.JSON(http.StatusOK, Response{Status: "ready", Version: version.Full()})
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// StartWithListener serves on a pre-created listener; used by tests.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	err := s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
