package gen

import (
	"math"
	"strconv"

	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/world"
)

// GenerateJobs rolls for a new contract at step and returns what it made:
// nothing, one job, one auction, or one mission per team. The returned
// jobs are not yet added to w.
func (g *Generator) GenerateJobs(step int, w *world.World) []*world.Job {
	jc := g.cfg.Jobs
	cat := w.Catalog()
	degenerate := jc.DifficultyMin == 0 && jc.DifficultyMax == 0 && jc.Missions.MissionDifficultyMax == 0
	pool := cat.AssembledItems()
	if degenerate {
		pool = cat.BaseItems()
	}

	steps := w.Steps()
	if steps <= 0 {
		steps = 1
	}
	p := jc.Rate * math.Exp(-float64(step)/float64(steps))
	if g.rng.Float64() > p {
		return nil
	}
	storages := w.Storages()
	if len(storages) == 0 || len(pool) == 0 {
		g.log.Warn("job roll succeeded but no storage or items to use", "step", step)
		return nil
	}
	storage := storages[g.rng.Intn(len(storages))].Name()
	products := min(randBetween(g.rng, jc.ProductTypesMin, jc.ProductTypesMax), len(pool))

	mission := g.rng.Float64() <= jc.MissionProbability && step >= g.missionEnd
	var difficulty int
	if mission {
		difficulty = randBetween(g.rng, jc.DifficultyMin, jc.Missions.MissionDifficultyMax)
	} else {
		difficulty = randBetween(g.rng, jc.DifficultyMin, jc.DifficultyMax)
	}
	items := g.pickItems(pool, products, difficulty)

	reward := computeReward(cat, items)
	reward += int(float64(reward) * float64(randBetween(g.rng, jc.RewardAddMin, jc.RewardAddMax)) / 100.0)
	if degenerate {
		reward = len(items) * 100
	}
	length := randBetween(g.rng, jc.TimeMin, jc.TimeMax)

	if len(items) == 0 {
		g.log.Warn("no items fit the drawn difficulty, dropping job", "step", step, "difficulty", difficulty)
		return nil
	}

	var jobs []*world.Job
	switch {
	case mission:
		g.missionEnd = step + 1 + length
		fine := auctionFine(reward, g.fineMod(), jc.Auctions.FineSub)
		id := strconv.Itoa(g.missionID)
		g.missionID++
		for _, team := range w.TeamNames() {
			jobs = append(jobs, world.NewMission(reward, storage, step+1, step+1+length, fine, team, id, items))
		}
	case g.rng.Float64() > jc.AuctionProbability:
		jobs = append(jobs, world.NewJob(world.JobRegular, reward, storage, step+1, step+1+length, world.PosterSystem, items))
	default:
		ac := jc.Auctions
		auctionTime := randBetween(g.rng, ac.AuctionTimeMin, ac.AuctionTimeMax)
		fine := auctionFine(reward, g.fineMod(), ac.FineSub)
		rewardAdd := 0
		if ac.MaxRewardAdd > 0 {
			rewardAdd = 1 + g.rng.Intn(ac.MaxRewardAdd)
		}
		reward += int(float64(reward) * float64(rewardAdd) / 100.0)
		begin := step + 1
		jobs = append(jobs, world.NewAuctionJob(reward, storage, begin, begin+auctionTime+length, auctionTime, fine, rewardAdd, items))
	}

	for _, j := range jobs {
		attrs := []any{"kind", j.Kind, "reward", j.Reward, "begin", j.Begin, "end", j.End, "storage", j.Storage, "required", j.Required}
		if j.Mission != nil {
			attrs = append(attrs, "team", j.Mission.Team, "mission_id", j.Mission.ID)
		}
		g.log.Info("generated job", attrs...)
	}
	return jobs
}

func (g *Generator) fineMod() int {
	n := g.cfg.Jobs.Auctions.FineAdd + g.cfg.Jobs.Auctions.FineSub
	if n <= 0 {
		return 1
	}
	return 1 + g.rng.Intn(n)
}

// pickItems greedily picks up to n distinct items whose summed assemble
// value stays within difficulty, then raises quantities while it still fits.
func (g *Generator) pickItems(pool []*catalog.Item, n, difficulty int) map[string]int {
	shuffled := append([]*catalog.Item(nil), pool...)
	g.rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

	chosen := map[string]int{}
	var order []*catalog.Item
	current := 0
	for _, it := range shuffled {
		if current+it.AssembleValue <= difficulty {
			current += it.AssembleValue
			chosen[it.Name] = 1
			order = append(order, it)
		}
		if len(order) >= n {
			break
		}
	}

	for current < difficulty && len(order) > 0 {
		g.rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		it := order[0]
		if it.AssembleValue > 0 && current+it.AssembleValue < difficulty {
			current += it.AssembleValue
			chosen[it.Name]++
		} else {
			order = order[1:]
		}
	}
	return chosen
}

// computeReward values every unit by its base item values plus 100 per
// point of assemble value.
func computeReward(cat *catalog.Catalog, items map[string]int) int {
	reward := 0
	for _, ic := range catalog.SortedCounts(items) {
		it, ok := cat.Item(ic.Item)
		if !ok {
			continue
		}
		unit := it.AssembleValue * 100
		for _, b := range it.BaseItems {
			v, _ := cat.Value(b.Item)
			unit += b.Count * v
		}
		reward += unit * ic.Count
	}
	return reward
}

// auctionFine applies the signed percentage modifier: up to fineSub it is
// taken off the reward, above fineSub the excess is added on top.
func auctionFine(reward, fineMod, fineSub int) int {
	if fineMod > fineSub {
		return reward + int(float64(reward)*float64(fineMod-fineSub)/100.0)
	}
	return reward - int(float64(reward)*float64(fineMod)/100.0)
}
