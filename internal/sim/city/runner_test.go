package city

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/world"
)

// botPublisher answers every action request with skip from all agents.
type botPublisher struct {
	gate *ActionGate

	mu       sync.Mutex
	started  int
	requests int
	ended    map[string]protocol.SimEnd
}

func (p *botPublisher) SimStart(string, map[string]protocol.InitialPercept) {
	p.mu.Lock()
	p.started++
	p.mu.Unlock()
}

func (p *botPublisher) RequestAction(step int, _ time.Time, percepts map[string]protocol.StepPercept) {
	p.mu.Lock()
	p.requests++
	p.mu.Unlock()
	for agent := range percepts {
		_ = p.gate.Submit(step, agent, world.Action{Type: ActionSkip})
	}
}

func (p *botPublisher) SimEnd(results map[string]protocol.SimEnd) {
	p.mu.Lock()
	p.ended = results
	p.mu.Unlock()
}

type memSink struct {
	steps   []StepRecord
	results map[string]TeamResult
	simID   string
}

func (m *memSink) WriteStep(rec StepRecord) error {
	m.steps = append(m.steps, rec)
	return nil
}

func (m *memSink) WriteResult(simID string, _ int, results map[string]TeamResult) error {
	m.simID = simID
	m.results = results
	return nil
}

type countingMetrics struct {
	steps   int
	results map[string]int
	money   map[string]int64
}

func (c *countingMetrics) ObserveStep(int, time.Duration) { c.steps++ }
func (c *countingMetrics) SetActiveJobs(int)              {}
func (c *countingMetrics) SetTeamMoney(team string, money int64) {
	c.money[team] = money
}
func (c *countingMetrics) AddContracts(string, int) {}
func (c *countingMetrics) AddActionResult(_, result string) {
	c.results[result]++
}

func TestRunner_RunsAllSteps(t *testing.T) {
	cfg := smallConfig()
	cfg.Steps = 12
	gate := NewActionGate()
	pub := &botPublisher{gate: gate}
	sink := &memSink{}
	metrics := &countingMetrics{results: map[string]int{}, money: map[string]int64{}}
	r := NewRunner(New(Options{}), gate, RunnerConfig{Config: cfg, StepTimeout: time.Second, SnapshotEvery: 5},
		WithPublisher(pub), WithSinks(sink), WithMetrics(metrics))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if pub.started != 1 || pub.requests != 12 || len(pub.ended) != 4 {
		t.Fatalf("publisher: started=%d requests=%d ended=%d", pub.started, pub.requests, len(pub.ended))
	}
	if len(sink.steps) != 12 {
		t.Fatalf("records: %d", len(sink.steps))
	}
	for i, rec := range sink.steps {
		if rec.Step != i || rec.Digest == "" || len(rec.Actions) != 4 || len(rec.Results) != 4 {
			t.Fatalf("record %d: step=%d actions=%d results=%d", i, rec.Step, len(rec.Actions), len(rec.Results))
		}
		wantSnap := i == 5 || i == 10 || i == 11
		if (rec.Snapshot != nil) != wantSnap {
			t.Fatalf("record %d snapshot present=%v", i, rec.Snapshot != nil)
		}
	}
	if sink.simID != "test-run" || len(sink.results) != 2 {
		t.Fatalf("result sink: %q %v", sink.simID, sink.results)
	}
	if metrics.steps != 12 || metrics.results[protocol.ResultSuccessful] != 48 || len(metrics.money) != 2 {
		t.Fatalf("metrics: %+v", metrics)
	}
	if err := r.Do(context.Background(), func(*Simulation) {}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Do after run: %v", err)
	}
}

func TestRunner_DoRunsBetweenSteps(t *testing.T) {
	cfg := smallConfig()
	cfg.Steps = 200
	gate := NewActionGate()
	r := NewRunner(New(Options{}), gate, RunnerConfig{Config: cfg, StepTimeout: time.Second}, WithPublisher(&botPublisher{gate: gate}))

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	var sawStep int
	err := r.Do(context.Background(), func(s *Simulation) {
		sawStep = s.CurrentStep()
		item := s.World().Catalog().Items[0].Name
		_ = s.HandleCommand([]string{"give", item, "agentA1", "1"})
	})
	if err != nil && !errors.Is(err, ErrNotRunning) {
		t.Fatalf("do: %v", err)
	}
	if err == nil && sawStep >= cfg.Steps {
		t.Fatalf("op ran after the last step: %d", sawStep)
	}
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunner_CancelStopsBetweenSteps(t *testing.T) {
	cfg := smallConfig()
	cfg.Steps = 50
	gate := NewActionGate()
	sink := &memSink{}
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(New(Options{}), gate, RunnerConfig{Config: cfg, StepTimeout: time.Minute}, WithSinks(sink))

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	// no publisher answers, so the runner sits in the first collection
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not stop")
	}
	if len(sink.steps) != 0 || sink.results != nil {
		t.Fatalf("cancelled run must not execute the open step: %d records", len(sink.steps))
	}
}
