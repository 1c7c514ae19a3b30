package observability

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
)

func TestCollector_RecordsStepMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveStep(4, 3*time.Millisecond)
	c.SetActiveJobs(7)
	c.SetTeamMoney("A", 1200)
	c.AddContracts("auction", 2)
	c.AddContracts("auction", 0)
	c.AddActionResult("goto", "successful")
	c.AddActionResult("goto", "successful")

	if got := testutil.ToFloat64(c.CurrentStep); got != 4 {
		t.Fatalf("city_step = %v", got)
	}
	if got := testutil.ToFloat64(c.ActiveJobs); got != 7 {
		t.Fatalf("city_active_jobs = %v", got)
	}
	if got := testutil.ToFloat64(c.TeamMoney.WithLabelValues("A")); got != 1200 {
		t.Fatalf("city_team_money = %v", got)
	}
	if got := testutil.ToFloat64(c.Contracts.WithLabelValues("auction")); got != 2 {
		t.Fatalf("city_contracts_generated_total = %v", got)
	}
	if got := testutil.ToFloat64(c.ActionResults.WithLabelValues("goto", "successful")); got != 2 {
		t.Fatalf("city_action_results_total = %v", got)
	}
	if n := testutil.CollectAndCount(c.StepDuration); n != 1 {
		t.Fatalf("histogram series = %d", n)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "city_step_duration_seconds_count 1") {
		t.Fatalf("metrics output missing histogram:\n%s", body)
	}
}

func TestNewCollector_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	a.SetActiveJobs(3)
	if got := testutil.ToFloat64(b.ActiveJobs); got != 3 {
		t.Fatalf("collectors should share series, got %v", got)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveStep(1, time.Second)
	c.SetTeamMoney("A", 1)
	c.AddActionResult("x", "y")
}

func TestRegisterQueueGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	err := RegisterQueueGauges(reg, "city_index", func() (int, int, uint64) { return 3, 10, 2 })
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg, "city_index_queue_depth", "city_index_dropped_total"); err != nil || n != 2 {
		t.Fatalf("gathered %d series: %v", n, err)
	}
	if err := RegisterQueueGauges(reg, "city_index", func() (int, int, uint64) { return 0, 0, 0 }); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestInitTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: "stdout", Writer: &buf}, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "city.step")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "city.step") {
		t.Fatalf("span not exported: %q", buf.String())
	}

	if _, err := InitTracing(context.Background(), TracingConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("unknown exporter should fail")
	}
	if _, err := InitTracing(context.Background(), TracingConfig{Exporter: "none"}, nil); err != nil {
		t.Fatalf("none: %v", err)
	}
}
