package city

import (
	"errors"
	"fmt"
	"testing"

	"cityrun.ai/internal/sim/tuning"
	"cityrun.ai/internal/sim/world"
)

func smallConfig() tuning.Config {
	cfg := tuning.Defaults()
	cfg.SimID = "test-run"
	cfg.Steps = 30
	cfg.Entities = []tuning.EntityConfig{{Role: "car", Count: 1}, {Role: "truck", Count: 1}}
	cfg.Generate.Jobs.Rate = 1
	return cfg
}

func initSim(t *testing.T, cfg tuning.Config) *Simulation {
	t.Helper()
	s := New(Options{})
	if _, err := s.Init(cfg.Steps, cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestRank(t *testing.T) {
	cases := []struct {
		name  string
		money map[string]int64
		want  map[string]int
	}{
		{"tie on top", map[string]int64{"A": 100, "B": 100, "C": 50}, map[string]int{"A": 1, "B": 1, "C": 3}},
		{"distinct", map[string]int64{"A": 10, "B": 30, "C": 20}, map[string]int{"A": 3, "B": 1, "C": 2}},
		{"tie below", map[string]int64{"A": 5, "B": 1, "C": 1, "D": 0}, map[string]int{"A": 1, "B": 2, "C": 2, "D": 4}},
		{"negative", map[string]int64{"A": -10, "B": 0}, map[string]int{"A": 2, "B": 1}},
		{"empty", map[string]int64{}, map[string]int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Rank(tc.money)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			for team, r := range tc.want {
				if got[team] != r {
					t.Fatalf("team %s: got %d want %d (%v)", team, got[team], r, got)
				}
			}
		})
	}
}

func TestInit_AgentsAndInitialPercepts(t *testing.T) {
	cfg := smallConfig()
	s := New(Options{})
	initial, err := s.Init(cfg.Steps, cfg)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if s.ID() != "test-run" || s.Steps() != 30 {
		t.Fatalf("id=%q steps=%d", s.ID(), s.Steps())
	}
	want := []string{"agentA1", "agentA2", "agentB1", "agentB2"}
	if len(initial) != len(want) {
		t.Fatalf("initial percepts: %d", len(initial))
	}
	for _, name := range want {
		p, ok := initial[name]
		if !ok {
			t.Fatalf("missing initial percept for %s", name)
		}
		if p.SimID != "test-run" || p.Steps != 30 || p.SeedCapital != cfg.SeedCapital || len(p.Items) == 0 {
			t.Fatalf("%s: %+v", name, p)
		}
	}
	if initial["agentA1"].Role.Name != "car" || initial["agentA2"].Role.Name != "truck" {
		t.Fatalf("roles follow entity config order: %s %s", initial["agentA1"].Role.Name, initial["agentA2"].Role.Name)
	}
	for _, e := range s.World().Entities() {
		if r := s.World().RoleOf(e); e.Battery != r.MaxBattery {
			t.Fatalf("%s should start with a full battery", e.Name)
		}
	}
}

func TestInit_GeneratedIDWhenUnset(t *testing.T) {
	cfg := smallConfig()
	cfg.SimID = ""
	s := initSim(t, cfg)
	if len(s.ID()) <= len("city-") || s.ID()[:5] != "city-" {
		t.Fatalf("generated id: %q", s.ID())
	}
}

func TestInit_RejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Generate.Facilities.QuadSize = 0
	if _, err := New(Options{}).Init(10, cfg); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestCycle_NoAgentsNoJobs(t *testing.T) {
	cfg := smallConfig()
	cfg.Teams = nil
	cfg.Entities = nil
	cfg.Generate.Jobs.Rate = 0
	s := New(Options{})
	initial, err := s.Init(5, cfg)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(initial) != 0 {
		t.Fatalf("initial percepts: %v", initial)
	}
	for step := 0; step < 5; step++ {
		if p := s.PreStep(step); len(p) != 0 {
			t.Fatalf("step %d percepts: %v", step, p)
		}
		s.Step(step, nil)
	}
	if len(s.World().Jobs()) != 0 {
		t.Fatalf("no jobs expected, got %d", len(s.World().Jobs()))
	}
	if end := s.Finish(); len(end) != 0 {
		t.Fatalf("finish: %v", end)
	}
}

// scripted sends every agent to a shop and lets it buy once there.
func scripted(s *Simulation, step int) map[string]world.Action {
	shops := s.World().Shops()
	out := map[string]world.Action{}
	for i, e := range s.World().Entities() {
		if len(shops) == 0 {
			break
		}
		shop := shops[i%len(shops)]
		if offers := shop.Offers(); e.Location == shop.Location() && len(offers) > 0 {
			out[e.Name] = world.Action{Type: ActionBuy, Params: []string{offers[step%len(offers)].Item}}
			continue
		}
		out[e.Name] = world.Action{Type: ActionGoto, Params: []string{shop.Name()}}
	}
	return out
}

func runDigests(t *testing.T, cfg tuning.Config) []string {
	t.Helper()
	s := initSim(t, cfg)
	var digests []string
	for step := 0; step < cfg.Steps; step++ {
		s.PreStep(step)
		s.Step(step, scripted(s, step))
		digests = append(digests, s.Digest())
	}
	return digests
}

func TestSimulation_DeterministicPerSeed(t *testing.T) {
	cfg := smallConfig()
	a := runDigests(t, cfg)
	b := runDigests(t, cfg)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("step %d digest differs", i)
		}
	}
	cfg.Seed++
	c := runDigests(t, cfg)
	if a[len(a)-1] == c[len(c)-1] {
		t.Fatalf("different seeds should diverge")
	}
}

func TestPreStep_PerceptsFollowVisibility(t *testing.T) {
	cfg := smallConfig()
	cfg.Generate.Jobs.Rate = 0
	s := initSim(t, cfg)
	st := s.World().Storages()[0].Name()
	s.SimAddJob(map[string]int{s.World().Catalog().Items[0].Name: 1}, 100, st, 0, 10, world.PosterSystem)
	mission := world.NewMission(100, st, 0, 10, 20, "B", "m0", map[string]int{s.World().Catalog().Items[0].Name: 1})
	if err := s.World().AddJob(mission); err != nil {
		t.Fatalf("mission: %v", err)
	}

	p := s.PreStep(0)
	a, b := p["agentA1"], p["agentB1"]
	if len(a.Jobs) != 1 || len(b.Jobs) != 2 {
		t.Fatalf("jobs visible: A=%d B=%d", len(a.Jobs), len(b.Jobs))
	}
	if a.Money != cfg.SeedCapital || a.Team != "A" || a.Self.Name != "agentA1" || a.Self.Battery == nil {
		t.Fatalf("self data: %+v", a)
	}
	for _, e := range a.Entities {
		if e.Team != "A" {
			t.Fatalf("A sees foreign entity %s", e.Name)
		}
	}
	if len(a.Shops) != len(s.World().Shops()) || len(a.Storages) != len(s.World().Storages()) {
		t.Fatalf("facilities missing from percept")
	}
}

func TestStep_TerminatesAndRecordsChanges(t *testing.T) {
	cfg := smallConfig()
	cfg.Generate.Jobs.Rate = 0
	s := initSim(t, cfg)
	st := s.World().Storages()[0].Name()
	item := s.World().Catalog().Items[0].Name
	mission := world.NewMission(100, st, 0, 2, 30, "A", "m0", map[string]int{item: 1})
	if err := s.World().AddJob(mission); err != nil {
		t.Fatalf("mission: %v", err)
	}

	s.PreStep(0)
	s.Step(0, nil)
	changes := s.JobChanges()
	if len(changes) != 1 || changes[0].Status != world.JobActive || changes[0].Team != "A" {
		t.Fatalf("changes after activation: %+v", changes)
	}
	s.PreStep(1)
	s.Step(1, nil)
	if c := s.JobChanges(); len(c) != 0 {
		t.Fatalf("no change expected: %+v", c)
	}
	s.PreStep(2)
	s.Step(2, nil)
	changes = s.JobChanges()
	if len(changes) != 1 || changes[0].Status != world.JobTerminated {
		t.Fatalf("changes after deadline: %+v", changes)
	}
	res := s.Result()
	if res["A"].Score != cfg.SeedCapital-30 || res["A"].Ranking != 2 || res["B"].Ranking != 1 {
		t.Fatalf("mission fine not applied: %+v", res)
	}
	end := s.Finish()
	if end["agentA1"].Ranking != 2 || end["agentB2"].Score != cfg.SeedCapital {
		t.Fatalf("finish: %+v", end)
	}
}

func TestSimStore(t *testing.T) {
	s := initSim(t, smallConfig())
	st := s.World().Storages()[0]
	item := s.World().Catalog().Items[0].Name
	if s.SimStore("storage-missing", item, "A", 1) {
		t.Fatalf("missing storage must report false")
	}
	if s.SimStore(st.Name(), "ghost", "A", 1) {
		t.Fatalf("unknown item must report false")
	}
	if !s.SimStore(st.Name(), item, "A", 2) || st.Stored(item, "A") != 2 {
		t.Fatalf("store: %d", st.Stored(item, "A"))
	}
	if s.SimStore(st.Name(), item, "A", st.Capacity+1) {
		t.Fatalf("overfull store must report false")
	}
}

func TestSimAddJob(t *testing.T) {
	cfg := smallConfig()
	cfg.Generate.Jobs.Rate = 0
	s := initSim(t, cfg)
	st := s.World().Storages()[0].Name()
	item := s.World().Catalog().Items[0].Name

	s.SimAddJob(map[string]int{item: 2}, 100, "storage-missing", 1, 10, "ops")
	if len(s.World().Jobs()) != 0 {
		t.Fatalf("job added for a missing storage")
	}
	s.SimAddJob(map[string]int{item: 2, "ghost": 1}, 100, st, 1, 10, "ops")
	jobs := s.World().Jobs()
	if len(jobs) != 1 || len(jobs[0].Required) != 1 || jobs[0].Poster != "ops" || jobs[0].Kind != world.JobRegular {
		t.Fatalf("jobs: %+v", jobs)
	}
}

func TestHandleCommand(t *testing.T) {
	s := initSim(t, smallConfig())
	item := s.World().Catalog().Items[0].Name
	cases := []struct {
		args []string
		err  error
	}{
		{[]string{"give", item, "agentA1", "3"}, nil},
		{[]string{"give", item, "agentA1"}, ErrBadCommand},
		{[]string{"give", item, "agentZ9", "1"}, ErrBadCommand},
		{[]string{"give", "ghost", "agentA1", "1"}, ErrBadCommand},
		{[]string{"give", item, "agentA1", "0"}, ErrBadCommand},
		{[]string{"teleport"}, ErrUnknownCommand},
		{nil, ErrUnknownCommand},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			err := s.HandleCommand(tc.args)
			if tc.err == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Fatalf("got %v want %v", err, tc.err)
			}
		})
	}
	a1, _ := s.World().Entity("agentA1")
	if a1.Inventory.Count(item) != 3 {
		t.Fatalf("give command: %v", a1.Inventory)
	}
}

func TestSnapshotAndStaticData(t *testing.T) {
	s := initSim(t, smallConfig())
	s.PreStep(0)
	s.Step(0, nil)
	snap := s.Snapshot()
	if snap.Step != 0 || len(snap.Entities) != 4 || len(snap.Teams) != 2 {
		t.Fatalf("snapshot: step=%d entities=%d teams=%d", snap.Step, len(snap.Entities), len(snap.Teams))
	}
	if len(snap.Storages) != len(s.World().Storages()) {
		t.Fatalf("snapshot storages: %d", len(snap.Storages))
	}
	sd := s.StaticData()
	if sd.SimID != "test-run" || len(sd.Teams) != 2 || len(sd.Roles) != 4 || len(sd.Items) == 0 {
		t.Fatalf("static data: %+v", sd)
	}
}
