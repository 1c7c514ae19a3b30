package gen

import (
	"testing"

	"cityrun.ai/internal/sim/route"
	"cityrun.ai/internal/sim/world"
)

func TestBlackout_RecoversAfterDuration(t *testing.T) {
	cfg := testConfig()
	cfg.Generate.Facilities.BlackoutProbability = 1
	cfg.Generate.Facilities.BlackoutTimeMin = 3
	cfg.Generate.Facilities.BlackoutTimeMax = 3
	g, w := build(t, cfg, 2)

	g.Blackout(w)
	affected := g.Affected()
	if len(affected) != 1 {
		t.Fatalf("expected one blackout, got %d", len(affected))
	}
	cs := affected[0]
	g.cfg.Facilities.BlackoutProbability = 0
	for i := 1; i <= 3; i++ {
		if cs.Working() {
			t.Fatalf("station working after %d calls", i-1)
		}
		g.Blackout(w)
	}
	if !cs.Working() || len(g.Affected()) != 0 {
		t.Fatalf("station should be back after 3 calls: blackout=%d", cs.Blackout())
	}
}

func TestBlackout_NeverPicksAffectedStation(t *testing.T) {
	cfg := testConfig()
	cfg.Generate.Facilities.BlackoutProbability = 1
	cfg.Generate.Facilities.BlackoutTimeMin = 100
	cfg.Generate.Facilities.BlackoutTimeMax = 100
	g, _ := build(t, cfg, 2)

	w := world.New(world.Config{ID: "bo"})
	for i, name := range []string{"cs0", "cs1"} {
		_ = w.AddFacility(&world.ChargingStation{Site: world.Site{ID: name, Loc: route.Location{Lat: float64(i)}}, Rate: 10})
	}
	for i := 0; i < 5; i++ {
		g.Blackout(w)
	}
	affected := g.Affected()
	if len(affected) != 2 || affected[0] == affected[1] {
		t.Fatalf("expected both distinct stations affected once, got %d", len(affected))
	}
	for _, cs := range w.ChargingStations() {
		if cs.Blackout() != 100-3 && cs.Blackout() != 100-4 {
			t.Fatalf("%s blackout counter %d: restarted while affected", cs.Name(), cs.Blackout())
		}
	}
}
