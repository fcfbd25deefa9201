// Package metrics exports run progress as Prometheus series.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"methuselah/internal/model"
)

const namespace = "methuselah"

// Collector owns a private registry so several clients in one process do
// not collide on the default one.
type Collector struct {
	registry    *prometheus.Registry
	bestGrowth  *prometheus.GaugeVec
	meanGrowth  *prometheus.GaugeVec
	population  *prometheus.GaugeVec
	survivors   *prometheus.GaugeVec
	generations *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	runs        *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bestGrowth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_growth",
			Help:      "Best-known peak growth of the run.",
		}, []string{"run_id"}),
		meanGrowth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_growth",
			Help:      "Mean peak growth of the latest generation.",
		}, []string{"run_id"}),
		population: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "population_size",
			Help:      "Number of candidates scored in the latest generation.",
		}, []string{"run_id"}),
		survivors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "survivors",
			Help:      "Candidates that passed the viability filter before breeding.",
		}, []string{"run_id"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generations scored, including the initial population.",
		}, []string{"run_id"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Candidate simulations run.",
		}, []string{"run_id"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by termination reason.",
		}, []string{"termination"}),
	}
	c.registry.MustRegister(c.bestGrowth, c.meanGrowth, c.population, c.survivors, c.generations, c.evaluations, c.runs)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ForRun returns an observer that labels every series with runID.
func (c *Collector) ForRun(runID string) *RunObserver {
	return &RunObserver{collector: c, runID: runID}
}

func (c *Collector) RunFinished(termination string) {
	c.runs.WithLabelValues(termination).Inc()
}

type RunObserver struct {
	collector *Collector
	runID     string

	mu              sync.Mutex
	lastEvaluations int
}

func (o *RunObserver) ObserveGeneration(diag model.GenerationDiagnostics) {
	c := o.collector
	c.bestGrowth.WithLabelValues(o.runID).Set(float64(diag.BestGrowth))
	c.meanGrowth.WithLabelValues(o.runID).Set(diag.MeanGrowth)
	c.population.WithLabelValues(o.runID).Set(float64(diag.PopulationSize))
	c.survivors.WithLabelValues(o.runID).Set(float64(diag.Survivors))
	c.generations.WithLabelValues(o.runID).Inc()

	o.mu.Lock()
	delta := diag.Evaluations - o.lastEvaluations
	o.lastEvaluations = diag.Evaluations
	o.mu.Unlock()
	if delta > 0 {
		c.evaluations.WithLabelValues(o.runID).Add(float64(delta))
	}
}
