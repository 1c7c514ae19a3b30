// Package city runs one City scenario: it builds the world from a config,
// generates content every step, applies agent actions and reports percepts,
// rankings and snapshots.
package city

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/gen"
	"cityrun.ai/internal/sim/route"
	"cityrun.ai/internal/sim/tuning"
	"cityrun.ai/internal/sim/world"
)

type Options struct {
	Logger *slog.Logger
	// Rand overrides the generator seeded from the config.
	Rand *rand.Rand
	// NewExecutor builds the action executor once the world exists.
	// Nil selects the default executor.
	NewExecutor func(w *world.World, rng *rand.Rand, log *slog.Logger) Executor
}

// Simulation is single-goroutine: Init, PreStep, Step and Finish must be
// called in sequence by one owner.
type Simulation struct {
	opts Options
	log  *slog.Logger

	cfg   tuning.Config
	simID string
	rng   *rand.Rand
	world *world.World
	gen   *gen.Generator
	exec  Executor

	step      int
	items     []protocol.ItemData
	jobStatus map[string]world.JobStatus
	generated map[world.JobKind]int
}

func New(opts Options) *Simulation {
	return &Simulation{opts: opts, log: logging.OrNoop(opts.Logger), step: -1}
}

// Init builds the world for a run of steps steps and returns the initial
// percept of every agent.
func (s *Simulation) Init(steps int, cfg tuning.Config) (map[string]protocol.InitialPercept, error) {
	cfg.Steps = steps
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	s.cfg = cfg
	s.simID = cfg.SimID
	if s.simID == "" {
		s.simID = "city-" + uuid.NewString()
	}
	s.rng = s.opts.Rand
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	s.gen = gen.New(cfg.Generate, s.rng, s.log.With("component", "generator"))
	s.jobStatus = map[string]world.JobStatus{}
	s.generated = map[world.JobKind]int{}

	cat := catalog.New()
	for _, r := range cfg.Roles {
		if err := cat.AddRole(&catalog.Role{Name: r.Name, Speed: r.Speed, MaxLoad: r.MaxLoad, MaxBattery: r.MaxBattery}); err != nil {
			return nil, err
		}
	}
	if _, err := s.gen.GenerateTools(cat); err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	if err := s.gen.GenerateItems(cat); err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}

	m := cfg.Map
	grid := route.NewGrid(m.Name, route.Bounds{MinLat: m.MinLat, MaxLat: m.MaxLat, MinLon: m.MinLon, MaxLon: m.MaxLon}, m.CellSize, m.Proximity)
	s.world = world.New(world.Config{ID: s.simID, Steps: steps, SeedCapital: cfg.SeedCapital, Map: grid, Catalog: cat})
	for _, t := range cfg.Teams {
		if _, err := s.world.AddTeam(t); err != nil {
			return nil, err
		}
	}
	if _, err := s.gen.GenerateFacilities(s.world); err != nil {
		return nil, fmt.Errorf("facilities: %w", err)
	}
	if err := s.addEntities(); err != nil {
		return nil, err
	}

	if s.opts.NewExecutor != nil {
		s.exec = s.opts.NewExecutor(s.world, s.rng, s.log)
	} else {
		s.exec = NewExecutor(s.world, s.log.With("component", "executor"))
	}

	s.items = itemData(cat)
	out := make(map[string]protocol.InitialPercept, len(s.world.Entities()))
	for _, e := range s.world.Entities() {
		out[e.Name] = protocol.InitialPercept{
			SimID:       s.simID,
			Agent:       e.Name,
			Team:        e.Team,
			Steps:       steps,
			Map:         s.world.MapName(),
			SeedCapital: cfg.SeedCapital,
			Role:        roleData(s.world.RoleOf(e)),
			Items:       s.items,
		}
	}
	s.log.Info("simulation initialized", "sim_id", s.simID, "steps", steps, "teams", len(cfg.Teams),
		"agents", len(out), "items", len(cat.Items), "facilities", len(s.world.Facilities()))
	return out, nil
}

// addEntities creates the configured agents of every team. Names are
// "agent" + team + running number.
func (s *Simulation) addEntities() error {
	for _, team := range s.cfg.Teams {
		n := 1
		for _, ec := range s.cfg.Entities {
			role, ok := s.world.Catalog().Role(ec.Role)
			if !ok {
				return fmt.Errorf("entities: role %q: %w", ec.Role, catalog.ErrUnknown)
			}
			for i := 0; i < ec.Count; i++ {
				e := &world.Entity{
					Name:     fmt.Sprintf("agent%s%d", team, n),
					Team:     team,
					Role:     role.Name,
					Location: s.world.Map().RandomLocation(s.rng),
					Battery:  role.MaxBattery,
				}
				n++
				if err := s.world.AddEntity(e); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// PreStep generates new contracts, activates the ones starting now and
// returns every agent's percept.
func (s *Simulation) PreStep(step int) map[string]protocol.StepPercept {
	s.step = step
	for _, j := range s.gen.GenerateJobs(step, s.world) {
		if err := s.world.AddJob(j); err != nil {
			s.log.Error("add generated job", "step", step, "err", err)
			continue
		}
		s.generated[j.Kind]++
	}
	s.world.ActivateJobs(step)
	return s.percepts(step)
}

// Step applies the actions of all agents in a fresh random order and then
// advances facilities and contracts. Agents without an action get noAction.
func (s *Simulation) Step(step int, actions map[string]world.Action) {
	s.step = step
	agents := s.world.AgentNames()
	s.rng.Shuffle(len(agents), func(i, j int) { agents[i], agents[j] = agents[j], agents[i] })

	s.gen.Blackout(s.world)
	s.exec.PreProcess(step)
	for _, a := range agents {
		s.exec.Execute(a, actions, step)
	}
	s.exec.PostProcess(step)

	for _, shop := range s.world.Shops() {
		shop.Step()
	}
	for _, j := range s.world.TerminateJobs(step) {
		s.log.Info("job ended", "step", step, "job", j.Name, "status", j.Status)
	}
	for _, j := range s.world.AssignAuctions(step) {
		winner := ""
		if j.Auction != nil {
			winner = j.Auction.Winner
		}
		s.log.Info("auction closed", "step", step, "job", j.Name, "status", j.Status, "winner", winner)
	}
}

// Finish returns every agent's final ranking and score.
func (s *Simulation) Finish() map[string]protocol.SimEnd {
	ranks := s.Rankings()
	out := make(map[string]protocol.SimEnd, len(s.world.Entities()))
	for _, e := range s.world.Entities() {
		t, _ := s.world.Team(e.Team)
		out[e.Name] = protocol.SimEnd{Ranking: ranks[e.Team], Score: t.Money}
	}
	s.log.Info("simulation finished", "sim_id", s.simID, "step", s.step, "rankings", ranks)
	return out
}

type TeamResult struct {
	Ranking int   `json:"ranking"`
	Score   int64 `json:"score"`
}

func (s *Simulation) Result() map[string]TeamResult {
	ranks := s.Rankings()
	out := make(map[string]TeamResult, len(s.world.Teams()))
	for _, t := range s.world.Teams() {
		out[t.Name] = TeamResult{Ranking: ranks[t.Name], Score: t.Money}
	}
	return out
}

func (s *Simulation) Rankings() map[string]int {
	money := make(map[string]int64, len(s.world.Teams()))
	for _, t := range s.world.Teams() {
		money[t.Name] = t.Money
	}
	return Rank(money)
}

// Rank orders teams by money, highest first. Tied teams share a rank and
// the next rank skips the tied count: 100, 100, 50 ranks 1, 1, 3.
func Rank(money map[string]int64) map[string]int {
	groups := map[int64][]string{}
	for team, m := range money {
		groups[m] = append(groups[m], team)
	}
	scores := make([]int64, 0, len(groups))
	for m := range groups {
		scores = append(scores, m)
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i] > scores[j] })

	out := make(map[string]int, len(money))
	rank := 1
	for _, m := range scores {
		for _, team := range groups[m] {
			out[team] = rank
		}
		rank += len(groups[m])
	}
	return out
}

func (s *Simulation) ID() string            { return s.simID }
func (s *Simulation) CurrentStep() int      { return s.step }
func (s *Simulation) Steps() int            { return s.cfg.Steps }
func (s *Simulation) World() *world.World   { return s.world }
func (s *Simulation) Digest() string        { return s.world.StateDigest(s.step) }
func (s *Simulation) Config() tuning.Config { return s.cfg }

// Generated returns how many contracts of each kind the generator made.
func (s *Simulation) Generated() map[world.JobKind]int {
	out := make(map[world.JobKind]int, len(s.generated))
	for k, v := range s.generated {
		out[k] = v
	}
	return out
}

type JobChange struct {
	Job    string          `json:"job"`
	Kind   world.JobKind   `json:"kind"`
	Status world.JobStatus `json:"status"`
	Reward int             `json:"reward"`
	Begin  int             `json:"begin"`
	End    int             `json:"end"`
	Winner string          `json:"winner,omitempty"`
	Team   string          `json:"team,omitempty"`
}

// JobChanges lists the jobs that appeared or changed status since the
// previous call.
func (s *Simulation) JobChanges() []JobChange {
	var out []JobChange
	for _, j := range s.world.Jobs() {
		if prev, ok := s.jobStatus[j.Name]; ok && prev == j.Status {
			continue
		}
		s.jobStatus[j.Name] = j.Status
		c := JobChange{Job: j.Name, Kind: j.Kind, Status: j.Status, Reward: j.Reward, Begin: j.Begin, End: j.End}
		if j.Auction != nil {
			c.Winner = j.Auction.Winner
		}
		if j.Mission != nil {
			c.Team = j.Mission.Team
		}
		if j.Kind == world.JobRegular || j.Kind == world.JobPosted {
			c.Winner = j.CompletedBy
		}
		out = append(out, c)
	}
	return out
}
