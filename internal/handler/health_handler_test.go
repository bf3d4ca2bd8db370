package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chldlstlr7-art/AITA-sub000/internal/config"
	"github.com/chldlstlr7-art/AITA-sub000/internal/handler"
	"github.com/chldlstlr7-art/AITA-sub000/internal/router"
)

func TestHealthReportsProbes(t *testing.T) {
	healthy := true
	app := fiber.New()
	router.Register(app, config.Config{AppName: "AITA", AppEnv: "test", JWTSecret: "secret"}, router.Dependencies{
		HealthProbes: map[string]handler.HealthProbe{
			"postgres": func(context.Context) error { return nil },
			"redis": func(context.Context) error {
				if healthy {
					return nil
				}
				return errors.New("connection refused")
			},
		},
	})

	status, env := do(t, app, call{method: http.MethodGet, path: "/api/v1/health"})
	require.Equal(t, fiber.StatusOK, status)
	var payload handler.HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, "AITA", payload.Service)

	healthy = false
	status, env = do(t, app, call{method: http.MethodGet, path: "/api/v1/health"})
	require.Equal(t, fiber.StatusServiceUnavailable, status)
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Equal(t, "degraded", payload.Status)
	require.Equal(t, "connection refused", payload.Checks["redis"])
}

func TestProtectedRoutesUseJWTByDefault(t *testing.T) {
	app := fiber.New()
	router.Register(app, config.Config{AppName: "AITA", JWTSecret: "secret"}, router.Dependencies{
		GradingHandler: handler.NewGradingHandler(&stubGrading{}, nil, zerolog.New(io.Discard)),
	})

	status, _ := do(t, app, call{method: http.MethodGet, path: "/api/v1/reports/r-1/auto-grade-result"})
	require.Equal(t, fiber.StatusUnauthorized, status)
}
