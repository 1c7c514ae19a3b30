package gen

import (
	"math/rand"
	"testing"

	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/route"
	"cityrun.ai/internal/sim/tuning"
	"cityrun.ai/internal/sim/world"
)

func testConfig() tuning.Config {
	cfg := tuning.Defaults()
	cfg.Steps = 100
	cfg.Map = tuning.MapConfig{Name: "test", MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1, CellSize: 0.005, Proximity: 0.001}
	cfg.Generate.Facilities.QuadSize = 0.25
	return cfg
}

// build runs the whole static generation for one seed.
func build(t *testing.T, cfg tuning.Config, seed int64) (*Generator, *world.World) {
	t.Helper()
	cat := catalog.New()
	for _, r := range cfg.Roles {
		if err := cat.AddRole(&catalog.Role{Name: r.Name, Speed: r.Speed, MaxLoad: r.MaxLoad, MaxBattery: r.MaxBattery}); err != nil {
			t.Fatalf("role: %v", err)
		}
	}
	g := New(cfg.Generate, rand.New(rand.NewSource(seed)), nil)
	if _, err := g.GenerateTools(cat); err != nil {
		t.Fatalf("tools: %v", err)
	}
	if err := g.GenerateItems(cat); err != nil {
		t.Fatalf("items: %v", err)
	}
	m := cfg.Map
	grid := route.NewGrid(m.Name, route.Bounds{MinLat: m.MinLat, MaxLat: m.MaxLat, MinLon: m.MinLon, MaxLon: m.MaxLon}, m.CellSize, m.Proximity)
	w := world.New(world.Config{ID: "gen", Steps: cfg.Steps, SeedCapital: cfg.SeedCapital, Map: grid, Catalog: cat})
	for _, team := range cfg.Teams {
		if _, err := w.AddTeam(team); err != nil {
			t.Fatalf("team: %v", err)
		}
	}
	if _, err := g.GenerateFacilities(w); err != nil {
		t.Fatalf("facilities: %v", err)
	}
	return g, w
}

func TestRandBetween(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if randBetween(rng, 5, 2) != 5 || randBetween(rng, 3, 3) != 3 {
		t.Fatalf("degenerate ranges should collapse to lo")
	}
	for i := 0; i < 100; i++ {
		if v := randBetween(rng, 2, 4); v < 2 || v > 4 {
			t.Fatalf("out of range: %d", v)
		}
	}
}

func TestGenerateItems_LayeredGraph(t *testing.T) {
	cfg := testConfig()
	for seed := int64(1); seed <= 20; seed++ {
		_, w := build(t, cfg, seed)
		cat := w.Catalog()
		resources := map[string]bool{}
		for _, r := range cat.Resources {
			resources[r] = true
		}
		maxLoad := cat.MaxLoad()
		for _, it := range cat.Items {
			if !it.NeedsAssembly() {
				if it.Level != 0 || it.AssembleValue != 0 {
					t.Fatalf("seed %d: base item %s level=%d av=%d", seed, it.Name, it.Level, it.AssembleValue)
				}
				continue
			}
			if it.Volume > maxLoad {
				t.Fatalf("seed %d: %s volume %d exceeds max load %d", seed, it.Name, it.Volume, maxLoad)
			}
			av := 1
			anchors := 0
			for _, p := range it.Parts {
				sub, _ := cat.Item(p.Item)
				if sub.Level >= it.Level {
					t.Fatalf("seed %d: %s (L%d) requires %s (L%d)", seed, it.Name, it.Level, sub.Name, sub.Level)
				}
				if it.Level == 1 && resources[sub.Name] {
					anchors++
				}
				if it.Level > 1 && sub.Level == it.Level-1 {
					anchors++
				}
				av += p.Count * sub.AssembleValue
			}
			if it.Level > 1 && anchors != 1 {
				t.Fatalf("seed %d: %s has %d parts from the previous layer", seed, it.Name, anchors)
			}
			if it.Level == 1 && anchors < 1 {
				t.Fatalf("seed %d: %s has no resource part", seed, it.Name)
			}
			if it.AssembleValue != av {
				t.Fatalf("seed %d: %s assemble value %d want %d", seed, it.Name, it.AssembleValue, av)
			}
		}
	}
}

func TestGenerate_DeterministicPerSeed(t *testing.T) {
	cfg := testConfig()
	_, a := build(t, cfg, 7)
	_, b := build(t, cfg, 7)
	_, c := build(t, cfg, 8)
	if a.Catalog().Digest() != b.Catalog().Digest() {
		t.Fatalf("same seed produced different catalogs")
	}
	if a.StateDigest(0) != b.StateDigest(0) {
		t.Fatalf("same seed produced different worlds")
	}
	if a.Catalog().Digest() == c.Catalog().Digest() && a.StateDigest(0) == c.StateDigest(0) {
		t.Fatalf("different seeds produced identical content")
	}
}

func TestGenerateFacilities_Placement(t *testing.T) {
	cfg := testConfig()
	for seed := int64(1); seed <= 10; seed++ {
		_, w := build(t, cfg, seed)
		seen := map[string]string{}
		kinds := map[world.Kind]int{}
		for _, f := range w.Facilities() {
			key := f.Location().Key()
			if other, ok := seen[key]; ok {
				t.Fatalf("seed %d: %s and %s share %s", seed, other, f.Name(), key)
			}
			seen[key] = f.Name()
			kinds[f.Kind()]++
			if !w.Map().Bounds().Contains(f.Location()) {
				t.Fatalf("seed %d: %s outside the map", seed, f.Name())
			}
		}
		for _, k := range world.Kinds {
			if kinds[k] == 0 {
				t.Fatalf("seed %d: no %s placed", seed, k)
			}
		}

		cat := w.Catalog()
		nodes := map[string]bool{}
		for _, n := range w.ResourceNodes() {
			nodes[n.Resource] = true
		}
		for _, r := range cat.Resources {
			if !nodes[r] {
				t.Fatalf("seed %d: resource %s has no node", seed, r)
			}
		}

		offered := map[string]bool{}
		for _, s := range w.Shops() {
			for _, o := range s.Offers() {
				offered[o.Item] = true
				v, _ := cat.Value(o.Item)
				if o.Price < v || o.Amount < cfg.Generate.Facilities.Shops.AmountMin {
					t.Fatalf("seed %d: %s offer %+v (value %d)", seed, s.Name(), o, v)
				}
			}
		}
		for _, name := range cat.Levels[0] {
			if !offered[name] {
				t.Fatalf("seed %d: base item %s not sold anywhere", seed, name)
			}
		}
		for _, tool := range cat.Tools {
			if !offered[tool.Name] {
				t.Fatalf("seed %d: tool %s not sold anywhere", seed, tool.Name)
			}
		}
		for _, s := range w.Storages() {
			for _, team := range cfg.Teams {
				if !s.HasTeam(team) {
					t.Fatalf("seed %d: %s does not know team %s", seed, s.Name(), team)
				}
			}
		}
	}
}

func TestGenerateFacilities_DensityAboveOneIsCount(t *testing.T) {
	cfg := testConfig()
	cfg.Generate.Facilities.Dumps.Density = 2
	_, w := build(t, cfg, 3)
	// 4x4 quadrants, two dumps each.
	if got := len(w.Dumps()); got != 2*4*4 {
		t.Fatalf("dumps: got %d want %d", got, 32)
	}
}

func TestGenerateFacilities_FallbackInstance(t *testing.T) {
	cfg := testConfig()
	cfg.Generate.Facilities.Workshops.Density = 0
	_, w := build(t, cfg, 3)
	if len(w.Workshops()) != 1 {
		t.Fatalf("expected exactly one fallback workshop, got %d", len(w.Workshops()))
	}
}
