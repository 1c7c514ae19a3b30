package city

import (
	"context"
	"errors"
	"sync"
	"time"

	"cityrun.ai/internal/sim/world"
)

var (
	ErrGateClosed      = errors.New("action gate is closed")
	ErrStaleStep       = errors.New("action for another step")
	ErrNotExpected     = errors.New("agent not expected this step")
	ErrDuplicateAction = errors.New("action already submitted this step")
)

// ActionGate buffers actions arriving from many connections until the
// step they belong to is executed. The first action of an agent counts.
type ActionGate struct {
	mu      sync.Mutex
	step    int
	open    bool
	pending map[string]bool
	actions map[string]world.Action
	full    chan struct{}
}

func NewActionGate() *ActionGate {
	return &ActionGate{step: -1}
}

// Open starts collecting actions of agents for step.
func (g *ActionGate) Open(step int, agents []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.step = step
	g.open = true
	g.pending = make(map[string]bool, len(agents))
	for _, a := range agents {
		g.pending[a] = true
	}
	g.actions = make(map[string]world.Action, len(agents))
	g.full = make(chan struct{})
	if len(g.pending) == 0 {
		close(g.full)
	}
}

func (g *ActionGate) Submit(step int, agent string, a world.Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return ErrGateClosed
	}
	if step != g.step {
		return ErrStaleStep
	}
	if _, ok := g.actions[agent]; ok {
		return ErrDuplicateAction
	}
	if !g.pending[agent] {
		return ErrNotExpected
	}
	delete(g.pending, agent)
	g.actions[agent] = a
	if len(g.pending) == 0 {
		close(g.full)
	}
	return nil
}

// Collect waits until every agent submitted, the deadline passed or ctx
// ended, closes the gate and returns the actions that arrived. Missing
// agents are simply absent from the result.
func (g *ActionGate) Collect(ctx context.Context, deadline time.Time) (map[string]world.Action, error) {
	g.mu.Lock()
	full := g.full
	g.mu.Unlock()

	var err error
	if full != nil {
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-full:
		case <-timer.C:
		case <-ctx.Done():
			err = ctx.Err()
		}
		timer.Stop()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
	out := g.actions
	g.actions = nil
	g.pending = nil
	if out == nil {
		out = map[string]world.Action{}
	}
	return out, err
}

// Step is the step the gate was last opened for.
func (g *ActionGate) Step() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.step
}
