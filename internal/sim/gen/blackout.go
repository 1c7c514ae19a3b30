package gen

import "cityrun.ai/internal/sim/world"

// Blackout counts running outages down and, with blackoutProbability,
// starts a new one on a charging station not already affected.
func (g *Generator) Blackout(w *world.World) {
	kept := g.affected[:0]
	for _, cs := range g.affected {
		if cs.DecrementBlackout() > 0 {
			kept = append(kept, cs)
		} else {
			g.log.Info("blackout over", "facility", cs.Name())
		}
	}
	g.affected = kept

	fc := g.cfg.Facilities
	if g.rng.Float64() >= fc.BlackoutProbability {
		return
	}
	duration := randBetween(g.rng, fc.BlackoutTimeMin, fc.BlackoutTimeMax)
	var candidates []*world.ChargingStation
	for _, cs := range w.ChargingStations() {
		if !g.isAffected(cs) {
			candidates = append(candidates, cs)
		}
	}
	if len(candidates) == 0 || duration <= 0 {
		return
	}
	target := candidates[g.rng.Intn(len(candidates))]
	target.InitiateBlackout(duration)
	g.affected = append(g.affected, target)
	g.log.Info("blackout", "facility", target.Name(), "duration", duration)
}

func (g *Generator) isAffected(cs *world.ChargingStation) bool {
	for _, a := range g.affected {
		if a == cs {
			return true
		}
	}
	return false
}
