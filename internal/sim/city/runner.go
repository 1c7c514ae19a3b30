package city

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/tuning"
	"cityrun.ai/internal/sim/world"
)

var ErrNotRunning = errors.New("runner is not running")

// Publisher delivers messages to connected agents.
type Publisher interface {
	SimStart(simID string, percepts map[string]protocol.InitialPercept)
	RequestAction(step int, deadline time.Time, percepts map[string]protocol.StepPercept)
	SimEnd(results map[string]protocol.SimEnd)
}

// StepSink persists one record per executed step.
type StepSink interface {
	WriteStep(rec StepRecord) error
}

// ResultSink is implemented by sinks that also keep the final result.
type ResultSink interface {
	WriteResult(simID string, step int, results map[string]TeamResult) error
}

type MetricsRecorder interface {
	ObserveStep(step int, d time.Duration)
	SetActiveJobs(n int)
	SetTeamMoney(team string, money int64)
	AddContracts(kind string, n int)
	AddActionResult(action, result string)
}

type RecordedAction struct {
	Agent  string   `json:"agent"`
	Type   string   `json:"type"`
	Params []string `json:"params,omitempty"`
	Result string   `json:"result"`
}

// StepRecord is one line of the step log. Actions holds what agents
// submitted, which is enough to replay the step from the seed.
type StepRecord struct {
	SimID      string                  `json:"sim_id"`
	Step       int                     `json:"step"`
	Digest     string                  `json:"digest"`
	DurationMS float64                 `json:"duration_ms"`
	Actions    map[string]world.Action `json:"actions,omitempty"`
	Results    []RecordedAction        `json:"results,omitempty"`
	Teams      map[string]int64        `json:"teams"`
	Jobs       []JobChange             `json:"jobs,omitempty"`
	Snapshot   *Snapshot               `json:"snapshot,omitempty"`
}

type RunnerConfig struct {
	Config        tuning.Config
	StepTimeout   time.Duration
	SnapshotEvery int
}

type RunnerOption func(*Runner)

func WithPublisher(p Publisher) RunnerOption { return func(r *Runner) { r.pub = p } }
func WithSinks(s ...StepSink) RunnerOption {
	return func(r *Runner) { r.sinks = append(r.sinks, s...) }
}
func WithMetrics(m MetricsRecorder) RunnerOption { return func(r *Runner) { r.metrics = m } }
func WithTracer(t trace.Tracer) RunnerOption     { return func(r *Runner) { r.tracer = t } }
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = logging.OrNoop(l) }
}

// Runner drives a Simulation through a whole run, collecting actions
// through an ActionGate and feeding sinks, metrics and agents.
type Runner struct {
	sim  *Simulation
	gate *ActionGate
	cfg  RunnerConfig

	pub     Publisher
	sinks   []StepSink
	metrics MetricsRecorder
	tracer  trace.Tracer
	log     *slog.Logger

	ops  chan func(*Simulation)
	done chan struct{}
}

func NewRunner(sim *Simulation, gate *ActionGate, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 4 * time.Second
	}
	r := &Runner{
		sim:    sim,
		gate:   gate,
		cfg:    cfg,
		tracer: otel.Tracer("cityrun.ai/internal/sim/city"),
		log:    logging.Noop(),
		ops:    make(chan func(*Simulation), 16),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Do runs fn on the simulation goroutine at the next step boundary and
// waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func(*Simulation)) error {
	finished := make(chan struct{})
	op := func(s *Simulation) {
		defer close(finished)
		fn(s)
	}
	select {
	case r.ops <- op:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) drainOps() {
	for {
		select {
		case op := <-r.ops:
			op(r.sim)
		default:
			return
		}
	}
}

// Run executes every step and finishes the simulation. Cancelling ctx
// stops the run before the next step is executed.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	steps := r.cfg.Config.Steps
	initial, err := r.sim.Init(steps, r.cfg.Config)
	if err != nil {
		return err
	}
	if r.pub != nil {
		r.pub.SimStart(r.sim.ID(), initial)
	}
	generated := map[world.JobKind]int{}

	for step := 0; step < steps; step++ {
		r.drainOps()
		if err := ctx.Err(); err != nil {
			r.log.Warn("run cancelled", "step", step)
			return err
		}

		start := time.Now()
		_, span := r.tracer.Start(ctx, "city.preStep", trace.WithAttributes(attribute.Int("step", step)))
		percepts := r.sim.PreStep(step)
		span.End()
		prep := time.Since(start)

		deadline := time.Now().Add(r.cfg.StepTimeout)
		r.gate.Open(step, r.sim.World().AgentNames())
		if r.pub != nil {
			r.pub.RequestAction(step, deadline, percepts)
		}
		actions, err := r.gate.Collect(ctx, deadline)
		if err != nil {
			r.log.Warn("run cancelled while collecting actions", "step", step)
			return err
		}
		if missing := len(percepts) - len(actions); missing > 0 {
			r.log.Debug("agents without action", "step", step, "missing", missing)
		}

		start = time.Now()
		_, span = r.tracer.Start(ctx, "city.step", trace.WithAttributes(attribute.Int("step", step), attribute.Int("actions", len(actions))))
		r.sim.Step(step, actions)
		span.End()
		took := prep + time.Since(start)

		rec := r.record(step, actions, took)
		for _, s := range r.sinks {
			if err := s.WriteStep(rec); err != nil {
				r.log.Error("write step", "step", step, "err", err)
			}
		}
		r.observe(step, took, rec, generated)
	}

	r.drainOps()
	results := r.sim.Finish()
	if r.pub != nil {
		r.pub.SimEnd(results)
	}
	final := r.sim.Result()
	for _, s := range r.sinks {
		if rs, ok := s.(ResultSink); ok {
			if err := rs.WriteResult(r.sim.ID(), r.sim.CurrentStep(), final); err != nil {
				r.log.Error("write result", "err", err)
			}
		}
	}
	return nil
}

func (r *Runner) record(step int, actions map[string]world.Action, took time.Duration) StepRecord {
	w := r.sim.World()
	rec := StepRecord{
		SimID:      r.sim.ID(),
		Step:       step,
		Digest:     r.sim.Digest(),
		DurationMS: float64(took.Microseconds()) / 1000.0,
		Actions:    actions,
		Teams:      map[string]int64{},
		Jobs:       r.sim.JobChanges(),
	}
	for _, t := range w.Teams() {
		rec.Teams[t.Name] = t.Money
	}
	for _, e := range w.Entities() {
		rec.Results = append(rec.Results, RecordedAction{Agent: e.Name, Type: e.LastAction.Type, Params: e.LastAction.Params, Result: e.LastResult})
	}
	last := step == r.cfg.Config.Steps-1
	if every := r.cfg.SnapshotEvery; last || (every > 0 && step > 0 && step%every == 0) {
		snap := r.sim.Snapshot()
		rec.Snapshot = &snap
	}
	return rec
}

func (r *Runner) observe(step int, took time.Duration, rec StepRecord, generated map[world.JobKind]int) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveStep(step, took)
	active := 0
	for _, j := range r.sim.World().Jobs() {
		if !j.IsFinished() && j.Status != world.JobInactive {
			active++
		}
	}
	r.metrics.SetActiveJobs(active)
	for team, money := range rec.Teams {
		r.metrics.SetTeamMoney(team, money)
	}
	for kind, n := range r.sim.Generated() {
		if d := n - generated[kind]; d > 0 {
			r.metrics.AddContracts(string(kind), d)
		}
		generated[kind] = n
	}
	for _, a := range rec.Results {
		r.metrics.AddActionResult(a.Type, a.Result)
	}
}
