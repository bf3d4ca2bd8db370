package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesPipelineCollectors(t *testing.T) {
	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	StageOutcomes().WithLabelValues("questions", "ok").Inc()
	WorkerTasks().WithLabelValues("pool.refill", "ok").Inc()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `aita_pipeline_stage_outcomes_total{outcome="ok",stage="questions"}`)
	require.Contains(t, string(body), `aita_worker_tasks_total`)
}
