package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/joinery-agent/internal/health"
	"github.com/p-blackswan/joinery-agent/internal/session"
	"github.com/p-blackswan/joinery-agent/internal/store"
)

// SessionStore is a session registry that can also be inspected.
type SessionStore interface {
	session.Store
	session.Lookup
}

// Handlers contains all HTTP route handlers.
type Handlers struct {
	conv     Conversation
	store    *store.Store
	sessions SessionStore
	checker  *health.Checker
	now      func() time.Time
	logger   zerolog.Logger
}

// NewHandlers creates handlers over the service components.
func NewHandlers(conv Conversation, st *store.Store, sessions SessionStore, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		conv:     conv,
		store:    st,
		sessions: sessions,
		checker:  checker,
		now:      time.Now,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// HealthDetail returns status with per-check results and session count.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.UserContext())
	status := "ok"
	for _, s := range results {
		if s == health.StatusDown {
			status = "down"
			break
		}
		if s == health.StatusDegraded {
			status = "degraded"
		}
	}
	active, err := h.sessions.Len(c.UserContext())
	if err != nil {
		active = -1
	}
	return c.JSON(fiber.Map{
		"status":          status,
		"checks":          results,
		"active_sessions": active,
	})
}

// queryLimit reads ?limit= bounded to [1, max], defaulting to def.
func queryLimit(c *fiber.Ctx, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
