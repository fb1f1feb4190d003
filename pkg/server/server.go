// Package server exposes the broadcast surface: the dashboard bundle, the
// JSON state endpoints, and the realtime socket that multiplexes delivered
// events out to dashboard clients.
package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/muhammetakkurtt/alpha-stream/pkg/core"
	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// FiltersDocument describes the active filter configuration in state
// responses.
type FiltersDocument struct {
	Users    []string `json:"users"`
	Keywords []string `json:"keywords"`
	Kinds    []string `json:"kinds"`
}

// StateDocument is the full state sent to new socket clients and returned by
// /api/state.
type StateDocument struct {
	Events     []*models.Event   `json:"events"`
	Users      []string          `json:"users"`
	Connection string            `json:"connection"`
	Stats      core.Snapshot     `json:"stats"`
	Filters    FiltersDocument   `json:"filters"`
	Sub        core.Subscription `json:"subscription"`
}

// StatusResponse is the /status shape.
type StatusResponse struct {
	Connection string        `json:"connection"`
	Events     core.Snapshot `json:"events"`
}

// Config holds the broadcast server settings.
type Config struct {
	DashboardDir string
	RecentSize   int
	Filters      FiltersDocument
}

// Server is the broadcast HTTP + realtime socket server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        Config
	core       *core.Core
	recent     *RecentBuffer
	hub        *Hub
	logger     *slog.Logger
}

// NewServer creates the broadcast server and registers its routes. API
// routes are registered before the static dashboard so the SPA fallback
// never shadows them.
func NewServer(cfg Config, c *core.Core) *Server {
	s := &Server{
		echo:   echo.New(),
		cfg:    cfg,
		core:   c,
		recent: NewRecentBuffer(cfg.RecentSize),
		logger: slog.Default().With("component", "broadcast-server"),
	}
	s.hub = NewHub(func() any { return s.State() })
	s.setupRoutes()
	s.setupDashboardRoutes()
	return s
}

// Recent returns the recent-events buffer.
func (s *Server) Recent() *RecentBuffer { return s.recent }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// HandleEvent is the bus handler for the "dashboard" topic: the event is
// appended to the recent buffer and pushed to every connected client.
func (s *Server) HandleEvent(_ context.Context, evt *models.Event) error {
	s.recent.Append(evt)
	s.hub.BroadcastEvent(evt)
	return nil
}

// SetConnectionState pushes an upstream connection-state change to all
// dashboard clients.
func (s *Server) SetConnectionState(state string) {
	s.hub.BroadcastStatus(state)
}

// State assembles the full state document.
func (s *Server) State() StateDocument {
	sub := s.core.Subscriptions().Current()
	return StateDocument{
		Events:     s.recent.NewestFirst(),
		Users:      sub.Users,
		Connection: string(s.core.ConnectionState()),
		Stats:      s.core.Statistics().Snapshot(),
		Filters:    s.cfg.Filters,
		Sub:        sub,
	}
}

func (s *Server) setupRoutes() {
	s.echo.GET("/status", s.statusHandler)
	s.echo.GET("/api/state", s.stateHandler)
	s.echo.GET("/ws", s.wsHandler)
}

// setupDashboardRoutes serves the pre-built dashboard bundle with an SPA
// fallback: any other GET path returns index.html so client-side routing
// works, except paths under /api/ (and /status, /ws), which get 404. Skipped
// when the bundle directory has no index.html.
func (s *Server) setupDashboardRoutes() {
	if s.cfg.DashboardDir == "" {
		return
	}
	indexPath := filepath.Join(s.cfg.DashboardDir, "index.html")
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		s.logger.Warn("Dashboard directory set but index.html not found, skipping static serving",
			"dir", s.cfg.DashboardDir)
		return
	}
	s.logger.Info("Serving dashboard from disk", "dir", s.cfg.DashboardDir)

	dashFS := os.DirFS(s.cfg.DashboardDir)

	s.echo.GET("/*", func(c *echo.Context) error {
		path := c.Request().URL.Path
		if strings.HasPrefix(path, "/api/") || path == "/status" || path == "/ws" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}

		c.Response().Header().Set("Cache-Control", "no-cache")

		// Serve the exact file when it exists (bundle assets, favicon).
		relPath := strings.TrimPrefix(path, "/")
		if relPath != "" {
			if info, statErr := fs.Stat(dashFS, relPath); statErr == nil && !info.IsDir() {
				return c.FileFS(relPath, dashFS)
			}
		}

		// SPA fallback.
		return c.FileFS("index.html", dashFS)
	})
}

func (s *Server) statusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Connection: string(s.core.ConnectionState()),
		Events:     s.core.Statistics().Snapshot(),
	})
}

func (s *Server) stateHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.State())
}

// wsHandler upgrades the request and hands the connection to the hub, which
// blocks until the client disconnects.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	s.hub.HandleConnection(c.Request().Context(), conn)
	return nil
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// StartWithListener serves on a pre-created listener. Used by tests to bind
// a random port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	err := s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown disconnects the dashboard clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
