package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"methuselah/internal/model"
)

func TestRunObserverUpdatesSeries(t *testing.T) {
	c := NewCollector()
	observer := c.ForRun("run-1")
	observer.ObserveGeneration(model.GenerationDiagnostics{Generation: 0, PopulationSize: 10, Survivors: 10, BestGrowth: 2, MeanGrowth: 0.5, Evaluations: 10})
	observer.ObserveGeneration(model.GenerationDiagnostics{Generation: 1, PopulationSize: 8, Survivors: 7, BestGrowth: 5, MeanGrowth: 1.5, Evaluations: 18})
	c.RunFinished("budget")

	if got := testutil.ToFloat64(c.bestGrowth.WithLabelValues("run-1")); got != 5 {
		t.Fatalf("expected best growth 5, got %f", got)
	}
	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("run-1")); got != 18 {
		t.Fatalf("expected 18 evaluations, got %f", got)
	}
	if got := testutil.ToFloat64(c.generations.WithLabelValues("run-1")); got != 2 {
		t.Fatalf("expected 2 generations, got %f", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("budget")); got != 1 {
		t.Fatalf("expected one finished run, got %f", got)
	}
}

func TestCollectorGatherLabelsByRun(t *testing.T) {
	c := NewCollector()
	c.ForRun("a").ObserveGeneration(model.GenerationDiagnostics{BestGrowth: 1})
	c.ForRun("b").ObserveGeneration(model.GenerationDiagnostics{BestGrowth: 3})

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var best *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "methuselah_best_growth" {
			best = family
		}
	}
	if best == nil {
		t.Fatal("best growth family not gathered")
	}
	values := map[string]float64{}
	for _, metric := range best.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "run_id" {
				values[label.GetValue()] = metric.GetGauge().GetValue()
			}
		}
	}
	if values["a"] != 1 || values["b"] != 3 {
		t.Fatalf("unexpected labelled values: %v", values)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector()
	c.ForRun("run-1").ObserveGeneration(model.GenerationDiagnostics{BestGrowth: 4, Evaluations: 3})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `methuselah_best_growth{run_id="run-1"} 4`) {
		t.Fatalf("expected best growth series in output:\n%s", body)
	}
}
