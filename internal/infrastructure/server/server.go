package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kestrelbrowser/shellhost/internal/api/http"
	"github.com/kestrelbrowser/shellhost/internal/api/middleware"
	"github.com/kestrelbrowser/shellhost/internal/api/ws"
	"github.com/kestrelbrowser/shellhost/internal/domain/download"
	"github.com/kestrelbrowser/shellhost/internal/domain/download/scan"
	"github.com/kestrelbrowser/shellhost/internal/domain/session"
	"github.com/kestrelbrowser/shellhost/internal/engine"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/config"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/monitoring"
	"github.com/kestrelbrowser/shellhost/internal/shared/types"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	sessions  *session.Manager
	downloads *download.Manager
	hub       *ws.Hub
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// NewServer creates a new server instance around the given engine
func NewServer(cfg *config.Config, eng engine.Engine) (*Server, error) {
	// Initialize logger
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing shell host",
		zap.String("port", cfg.Server.Port),
		zap.String("download_dir", cfg.DownloadDir()),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Initialize session manager
	sessions := session.NewManager(eng, logger).WithMetrics(metrics)

	// Initialize download registry
	fs := afero.NewOsFs()
	downloads := download.NewManager(fs, cfg.DownloadDir(), logger).
		WithOpener(download.NewShellOpener()).
		WithMetrics(metrics)

	if cfg.Scanner.Enabled {
		if scanner, ok := scan.Discover(fs, cfg.Scanner.Path); ok {
			downloads.WithScanner(scanner)
			logger.Info("Integrity scanner discovered", zap.String("engine", scanner.Name()))
		} else {
			logger.Info("No integrity scanner installed; scanning unavailable")
		}
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSForOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Create handlers
	hub := ws.NewHub(logger, metrics)
	wsHandler := ws.NewHandler(hub, logger)
	handlers := http.NewHandlers(sessions, downloads, startTransfer(eng, downloads), logger)

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Window session management
	router.POST("/windows", handlers.CreateWindow)
	router.GET("/windows", handlers.ListWindows)
	router.GET("/windows/:id", handlers.GetWindow)
	router.DELETE("/windows/:id", handlers.CloseWindow)
	router.POST("/windows/:id/bounds", handlers.SetBounds)
	router.POST("/windows/:id/mode", handlers.SwitchMode)

	// Per-view operations
	router.POST("/windows/:id/views", handlers.CreateView)
	router.DELETE("/windows/:id/views/:tab", handlers.DestroyView)
	router.POST("/windows/:id/views/:tab/activate", handlers.ActivateView)
	router.POST("/windows/:id/views/:tab/navigate", handlers.Navigate)
	router.POST("/windows/:id/views/:tab/reload", handlers.Reload)
	router.GET("/windows/:id/views/:tab/url", handlers.GetURL)
	router.POST("/windows/:id/views/:tab/execute", handlers.ExecuteScript)

	// Download registry
	router.GET("/downloads", handlers.ListDownloads)
	router.POST("/downloads", handlers.StartDownload)
	router.GET("/downloads/:id", handlers.GetDownload)
	router.POST("/downloads/:id/action", handlers.DownloadAction)
	router.DELETE("/downloads/completed", handlers.ClearCompleted)

	// WebSocket
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &Server{
		router:    router,
		sessions:  sessions,
		downloads: downloads,
		hub:       hub,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}

	// Pump manager feeds into the hub
	go srv.pumpViewEvents()
	go srv.pumpDownloadEvents()

	logger.Info("Shell host initialized")
	return srv, nil
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down shell host...")
	s.sessions.Close()
	s.logger.Sync()
	return nil
}

// pumpViewEvents forwards the session feed to every connected client,
// preserving its order
func (s *Server) pumpViewEvents() {
	for ev := range s.sessions.Events() {
		s.hub.Broadcast(string(ev.Type), ev)
	}
}

// pumpDownloadEvents forwards the download feed to every connected
// client, preserving its order
func (s *Server) pumpDownloadEvents() {
	for ev := range s.downloads.Events() {
		s.hub.Broadcast(string(ev.Type), ev)
	}
}

// startTransfer bridges HTTP-initiated downloads to the engine: it asks
// the engine to start the transfer and registers the result
func startTransfer(eng engine.Engine, downloads *download.Manager) http.StartTransfer {
	starter, ok := eng.(engine.TransferStarter)
	if !ok {
		return nil
	}
	return func(url, filename, mime string, totalBytes int64) *types.DownloadRecord {
		transfer := starter.StartTransfer(url, filename, mime, totalBytes)
		rec := downloads.Register(transfer)
		if driver, ok := transfer.(engine.TransferDriver); ok {
			driver.Drive(
				func(received int64) { downloads.OnProgress(rec.ID, received) },
				func(state engine.TransferState) { downloads.OnTerminal(rec.ID, state) },
			)
		}
		return rec
	}
}
