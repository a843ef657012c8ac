package api

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/joinery-agent/internal/health"
	"github.com/p-blackswan/joinery-agent/internal/metrics"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	ListenAddr      string
	AuthConfig      AuthConfig
	RateLimit       RateLimitConfig
	CORSOrigins     string
	TwilioAuthToken string // empty disables signature checks
	PublicBaseURL   string
}

// Server is the Fiber application serving the voice webhook and dashboard API.
type Server struct {
	app     *fiber.App
	limiter *rateLimiter
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures the server. metricsCollector may be nil.
func NewServer(cfg ServerConfig, h *Handlers, checker *health.Checker, metricsCollector *metrics.Metrics, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		// Form values and params outlive the request in session state.
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "http_server").Logger(),
		config: cfg,
	}
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit)
	}

	s.setupMiddleware(cfg, metricsCollector)
	s.setupRoutes(h, checker, metricsCollector)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, m *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(requestid.New())

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		}))
	}

	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return err
		}
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		if m != nil {
			m.RecordHTTP(c.Route().Path, strconv.Itoa(status))
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Msg("request")
		return err
	})
}

func (s *Server) setupRoutes(h *Handlers, checker *health.Checker, m *metrics.Metrics) {
	s.app.Get("/healthz", health.LivenessHandler())
	s.app.Get("/readyz", checker.ReadinessHandler())
	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	voice := s.app.Group("/api/voice")
	if s.config.TwilioAuthToken != "" {
		voice.Post("/webhook", twilioSignature(s.config.TwilioAuthToken, s.config.PublicBaseURL, s.logger), h.VoiceWebhook)
	} else {
		voice.Post("/webhook", h.VoiceWebhook)
	}

	guarded := []fiber.Handler{NewAuthMiddleware(s.config.AuthConfig, s.logger)}
	if s.limiter != nil {
		guarded = append([]fiber.Handler{s.limiter.middleware()}, guarded...)
	}
	voice.Post("/test-ai", append(guarded, h.VoiceTestAI)...)

	v1 := s.app.Group("/api/v1", guarded...)
	v1.Get("/health", h.HealthDetail)
	v1.Get("/timeline", h.Timeline)

	v1.Get("/projects", h.ListProjects)
	v1.Post("/projects", h.CreateProject)
	v1.Get("/projects/:id", h.GetProject)
	v1.Patch("/projects/:id", h.UpdateProject)
	v1.Delete("/projects/:id", h.DeleteProject)

	v1.Get("/projects/:id/tasks", h.ListTasks)
	v1.Post("/projects/:id/tasks", h.CreateTask)
	v1.Patch("/tasks/:taskID", h.UpdateTask)
	v1.Post("/tasks/:taskID/toggle", h.ToggleTask)
	v1.Delete("/tasks/:taskID", h.DeleteTask)

	v1.Get("/projects/:id/materials", h.ListMaterials)
	v1.Post("/projects/:id/materials", h.CreateMaterial)
	v1.Patch("/materials/:materialID", h.UpdateMaterial)
	v1.Delete("/materials/:materialID", h.DeleteMaterial)

	v1.Get("/projects/:id/items", h.ListItems)
	v1.Post("/projects/:id/items", h.CreateItem)
	v1.Patch("/items/:itemID", h.UpdateItem)
	v1.Put("/items/:itemID/checklist/:step", h.SetChecklistStep)
	v1.Delete("/items/:itemID", h.DeleteItem)

	v1.Get("/installers", h.ListInstallers)
	v1.Post("/installers", h.CreateInstaller)
	v1.Put("/projects/:id/installers/:installerID", h.AssignInstaller)
	v1.Delete("/projects/:id/installers/:installerID", h.UnassignInstaller)

	v1.Get("/sessions/:key", h.GetSession)
	v1.Delete("/sessions/:key", h.DeleteSession)
	v1.Get("/sessions/:key/turns", h.ListTurns)
}

// Run serves until ctx is cancelled, then shuts down within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	if s.limiter != nil {
		go s.limiter.janitor(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Start starts listening. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("http server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("http server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
