// Package gen builds the random content of a city run: tools, the item
// graph, facilities, jobs and charging station blackouts. All randomness
// comes from the *rand.Rand handed to New.
package gen

import (
	"log/slog"
	"math/rand"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/sim/tuning"
	"cityrun.ai/internal/sim/world"
)

type Generator struct {
	cfg tuning.Generate
	rng *rand.Rand
	log *slog.Logger

	maxCapacity int
	missionID   int
	missionEnd  int
	affected    []*world.ChargingStation
}

func New(cfg tuning.Generate, rng *rand.Rand, logger *slog.Logger) *Generator {
	return &Generator{cfg: cfg, rng: rng, log: logging.OrNoop(logger)}
}

// randBetween draws uniformly from [lo, hi]; hi < lo collapses to lo.
func randBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// Affected returns the charging stations currently in outage.
func (g *Generator) Affected() []*world.ChargingStation {
	out := make([]*world.ChargingStation, len(g.affected))
	copy(out, g.affected)
	return out
}

// MissionEnd is the first step at which a new mission may be created.
func (g *Generator) MissionEnd() int { return g.missionEnd }
