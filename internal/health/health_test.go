package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivenessHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessHandler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ok")
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", func(ctx context.Context) Status { return StatusOK })
	c.Register("sessions", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("db", func(ctx context.Context) Status { return StatusOK })
	c.Register("sessions", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("slack", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestPingCheck(t *testing.T) {
	fail := func(context.Context) error { return errors.New("connection refused") }
	ok := func(context.Context) error { return nil }

	assert.Equal(t, StatusOK, PingCheck(ok, false)(context.Background()))
	assert.Equal(t, StatusDown, PingCheck(fail, false)(context.Background()))
	assert.Equal(t, StatusDegraded, PingCheck(fail, true)(context.Background()))
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		code   int
		body   string
	}{
		{"healthy", StatusOK, http.StatusOK, `"status":"ready"`},
		{"down", StatusDown, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(zerolog.Nop())
			c.Register("db", func(ctx context.Context) Status { return tt.status })

			app := fiber.New()
			app.Get("/readyz", c.ReadinessHandler())

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/readyz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.body)
		})
	}
}
