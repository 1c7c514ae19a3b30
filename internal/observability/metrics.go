package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of a simulation run. It
// satisfies city.MetricsRecorder.
type Collector struct {
	gatherer prometheus.Gatherer

	StepDuration  prometheus.Histogram
	CurrentStep   prometheus.Gauge
	ActiveJobs    prometheus.Gauge
	TeamMoney     *prometheus.GaugeVec
	Contracts     *prometheus.CounterVec
	ActionResults *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stepDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "city_step_duration_seconds",
		Help:    "Simulation compute time per step, excluding the wait for agent actions.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "city_step_duration_seconds")
	if err != nil {
		return nil, err
	}
	step, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "city_step",
		Help: "Last executed simulation step.",
	}), "city_step")
	if err != nil {
		return nil, err
	}
	active, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "city_active_jobs",
		Help: "Jobs that are live (active, auctioning or assigned).",
	}), "city_active_jobs")
	if err != nil {
		return nil, err
	}
	money, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "city_team_money",
		Help: "Current money of each team.",
	}, []string{"team"}), "city_team_money")
	if err != nil {
		return nil, err
	}
	contracts, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "city_contracts_generated_total",
		Help: "Contracts created by the generator, by kind.",
	}, []string{"kind"}), "city_contracts_generated_total")
	if err != nil {
		return nil, err
	}
	results, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "city_action_results_total",
		Help: "Executed agent actions by action type and result code.",
	}, []string{"action", "result"}), "city_action_results_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		StepDuration:  stepDuration,
		CurrentStep:   step,
		ActiveJobs:    active,
		TeamMoney:     money,
		Contracts:     contracts,
		ActionResults: results,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveStep(step int, d time.Duration) {
	if c == nil {
		return
	}
	c.StepDuration.Observe(d.Seconds())
	c.CurrentStep.Set(float64(step))
}

func (c *Collector) SetActiveJobs(n int) {
	if c == nil {
		return
	}
	c.ActiveJobs.Set(float64(n))
}

func (c *Collector) SetTeamMoney(team string, money int64) {
	if c == nil {
		return
	}
	c.TeamMoney.WithLabelValues(team).Set(float64(money))
}

func (c *Collector) AddContracts(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Contracts.WithLabelValues(kind).Add(float64(n))
}

func (c *Collector) AddActionResult(action, result string) {
	if c == nil {
		return
	}
	c.ActionResults.WithLabelValues(action, result).Inc()
}

// QueueStats is polled by RegisterQueueGauges.
type QueueStats func() (depth, capacity int, dropped uint64)

// RegisterQueueGauges exposes the state of an asynchronous writer queue
// under the given name prefix.
func RegisterQueueGauges(reg prometheus.Registerer, prefix string, stats QueueStats) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Items waiting in the writer queue.",
		}, func() float64 { d, _, _ := stats(); return float64(d) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: prefix + "_queue_capacity",
			Help: "Capacity of the writer queue.",
		}, func() float64 { _, c, _ := stats(); return float64(c) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Items dropped because the writer queue was full.",
		}, func() float64 { _, _, n := stats(); return float64(n) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register %s queue metrics: %w", prefix, err)
		}
	}
	return nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
