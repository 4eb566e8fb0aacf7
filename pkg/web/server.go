// Package web serves the creature's live status over HTTP and websocket.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-taro/internal/metrics"
	"github.com/teslashibe/go-taro/pkg/hub"
)

// Config holds the status server settings.
type Config struct {
	// Port is the TCP port to listen on.
	Port string `yaml:"port" json:"port"`

	// StatusInterval is how often status is pushed to websocket clients.
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval"`
}

// DefaultConfig listens on 8080 and pushes status four times a second.
func DefaultConfig() Config {
	return Config{
		Port:           "8080",
		StatusInterval: 250 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.StatusInterval <= 0 {
		return errors.New("status_interval must be positive")
	}
	return nil
}

// Status is the body of GET /api/status and of every websocket push.
type Status struct {
	Time          time.Time `json:"time"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	metrics.Snapshot
}

// Server is the status server
type Server struct {
	cfg     Config
	app     *fiber.App
	source  metrics.SnapshotFunc
	metrics *metrics.Metrics
	logger  *slog.Logger
	started time.Time

	statusHub *hub.Hub
}

// NewServer creates a status server reading snapshots from source.
func NewServer(cfg Config, source metrics.SnapshotFunc, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		cfg:       cfg,
		source:    source,
		metrics:   m,
		logger:    logger,
		started:   time.Now(),
		statusHub: hub.New("status", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Taro Status",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Use(s.recordRequest)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, pushing status to websocket
// clients at the configured interval.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	go s.statusHub.Run(ctx)
	go s.publishLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		s.logger.Warn("shutdown", "error", err)
	}
	ln.Close()

	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Server) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
				s.logger.Warn("encode status", "error", err)
			}
		}
	}
}

func (s *Server) status() Status {
	now := time.Now()
	return Status{
		Time:          now,
		UptimeSeconds: now.Sub(s.started).Seconds(),
		Snapshot:      s.source(),
	}
}

// recordRequest counts every request by route.
func (s *Server) recordRequest(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.metrics.RecordHTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status), time.Since(start).Seconds())
	return err
}
