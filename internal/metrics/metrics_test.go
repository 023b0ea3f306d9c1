package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/api/atividades/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/atividades/:id", "204"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/atividades/123", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/atividades/:id", "204"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, before=%v after=%v", before, after)
	}
}

func TestObserveBridge(t *testing.T) {
	before := testutil.ToFloat64(BridgeRequestsTotal.WithLabelValues("storage", "upload", "success"))
	ObserveBridge("storage", "upload", "success", time.Now())
	after := testutil.ToFloat64(BridgeRequestsTotal.WithLabelValues("storage", "upload", "success"))
	if after != before+1 {
		t.Fatalf("expected bridge counter to increase")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	GateDecisions.WithLabelValues("public").Inc()

	app := fiber.New()
	app.Get("/metrics", Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "atividades_gate_decisions_total") {
		t.Fatalf("expected gate metric in exposition")
	}
}
