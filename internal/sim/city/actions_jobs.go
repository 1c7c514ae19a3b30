package city

import (
	"errors"
	"sort"
	"strconv"

	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/world"
)

// assemble <item>: parts come from the assembler first, then from
// teammates at the same workshop that assist this agent in the same step.
func handleAssemble(x *DefaultExecutor, e *world.Entity, a world.Action, actions map[string]world.Action, _ int) string {
	name, ok := param(a, 0)
	if !ok || len(a.Params) != 1 {
		return protocol.ResultWrongParam
	}
	cat := x.w.Catalog()
	item, ok := cat.Item(name)
	if !ok {
		return protocol.ResultUnknownItem
	}
	if !item.NeedsAssembly() {
		return protocol.ResultWrongParam
	}
	f, _ := x.facilityHere(e)
	if _, ok := f.(*world.Workshop); !ok {
		return protocol.ResultLocation
	}

	group := append([]*world.Entity{e}, x.assistantsOf(e, actions)...)

	for _, p := range item.Parts {
		total := 0
		for _, m := range group {
			total += m.Inventory.Count(p.Item)
		}
		if total < p.Count {
			return protocol.ResultItemAmount
		}
	}
	for _, t := range item.Tools {
		found := false
		for _, m := range group {
			if r := x.w.RoleOf(m); r != nil && r.CanUse(t) && m.Inventory.Count(t) > 0 {
				found = true
				break
			}
		}
		if !found {
			return protocol.ResultTools
		}
	}

	// plan who gives what, assembler first
	plan := make([]world.Inventory, len(group))
	freed := 0
	for i := range plan {
		plan[i] = world.Inventory{}
	}
	for _, p := range item.Parts {
		need := p.Count
		for i, m := range group {
			n := min(need, m.Inventory.Count(p.Item))
			plan[i].Add(p.Item, n)
			need -= n
			if i == 0 {
				v, _ := cat.Volume(p.Item)
				freed += v * n
			}
		}
	}
	if !x.fits(e, item.Volume-freed) {
		return protocol.ResultCapacity
	}

	for i, m := range group {
		for _, ic := range plan[i].Sorted() {
			m.Inventory.Remove(ic.Item, ic.Count)
		}
	}
	e.Inventory.Add(item.Name, 1)
	x.assembled[e.Name] = true
	return protocol.ResultSuccessful
}

// assistantsOf returns teammates next to e that assist it this step, by name.
func (x *DefaultExecutor) assistantsOf(e *world.Entity, actions map[string]world.Action) []*world.Entity {
	var names []string
	for agent, act := range actions {
		if act.Type == ActionAssistAssemble && len(act.Params) == 1 && act.Params[0] == e.Name {
			names = append(names, agent)
		}
	}
	sort.Strings(names)
	var out []*world.Entity
	for _, n := range names {
		m, ok := x.w.Entity(n)
		if !ok || m == e || m.Team != e.Team || !x.w.Map().Near(m.Location, e.Location) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// assist_assemble <agent>: the result is settled in PostProcess.
func handleAssistAssemble(x *DefaultExecutor, e *world.Entity, a world.Action, actions map[string]world.Action, _ int) string {
	name, ok := param(a, 0)
	if !ok || len(a.Params) != 1 {
		return protocol.ResultWrongParam
	}
	target, ok := x.w.Entity(name)
	if !ok || target == e {
		return protocol.ResultUnknownAgent
	}
	if target.Team != e.Team || actions[name].Type != ActionAssemble {
		return protocol.ResultCounterpart
	}
	if !x.w.Map().Near(target.Location, e.Location) {
		return protocol.ResultLocation
	}
	x.assistants[name] = append(x.assistants[name], e.Name)
	return protocol.ResultSuccessful
}

// deliver_job <job>
func handleDeliverJob(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, step int) string {
	name, ok := param(a, 0)
	if !ok || len(a.Params) != 1 {
		return protocol.ResultWrongParam
	}
	j, ok := x.w.Job(name)
	if !ok {
		return protocol.ResultUnknownJob
	}
	f, ok := x.facilityHere(e)
	if !ok || f.Name() != j.Storage {
		return protocol.ResultLocation
	}
	d, err := x.w.DeliverJob(e, name, step)
	switch {
	case errors.Is(err, world.ErrJobStatus):
		return protocol.ResultJobStatus
	case err != nil:
		return protocol.ResultFailed
	}
	if d.Completed {
		x.log.Info("job completed", "step", step, "job", j.Name, "team", e.Team, "reward", j.Reward)
		return protocol.ResultSuccessful
	}
	if d.Moved.Empty() {
		return protocol.ResultUseless
	}
	return protocol.ResultSuccessful
}

// bid_for_job <job> <amount>
func handleBidForJob(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	name, ok := param(a, 0)
	if !ok || len(a.Params) != 2 {
		return protocol.ResultWrongParam
	}
	amount, err := strconv.Atoi(a.Params[1])
	if err != nil {
		return protocol.ResultWrongParam
	}
	j, ok := x.w.Job(name)
	if !ok {
		return protocol.ResultUnknownJob
	}
	switch err := j.Bid(e.Team, amount); {
	case errors.Is(err, world.ErrJobStatus):
		return protocol.ResultJobStatus
	case err != nil:
		return protocol.ResultWrongParam
	}
	return protocol.ResultSuccessful
}

// post_job <reward> <end> <storage> <item> <amount> [<item> <amount> ...]
// The reward is taken from the team at once and refunded if the job
// expires.
func handlePostJob(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, step int) string {
	if len(a.Params) < 5 || (len(a.Params)-3)%2 != 0 {
		return protocol.ResultWrongParam
	}
	reward, ok1 := paramInt(a, 0)
	end, ok2 := paramInt(a, 1)
	if !ok1 || !ok2 || end <= step+1 {
		return protocol.ResultWrongParam
	}
	storage := a.Params[2]
	if _, ok := x.w.Storage(storage); !ok {
		return protocol.ResultUnknownFacility
	}
	req := map[string]int{}
	for i := 3; i < len(a.Params); i += 2 {
		item := a.Params[i]
		if !x.w.Catalog().Known(item) {
			return protocol.ResultUnknownItem
		}
		n, ok := paramInt(a, i+1)
		if !ok {
			return protocol.ResultWrongParam
		}
		req[item] += n
	}
	team, ok := x.w.Team(e.Team)
	if !ok || team.Money < int64(reward) {
		return protocol.ResultFailed
	}
	j := world.NewJob(world.JobPosted, reward, storage, step+1, end, e.Team, req)
	if err := x.w.AddJob(j); err != nil {
		x.log.Error("post job", "agent", e.Name, "err", err)
		return protocol.ResultFailed
	}
	team.Money -= int64(reward)
	x.log.Info("job posted", "step", step, "job", j.Name, "team", e.Team, "reward", reward)
	return protocol.ResultSuccessful
}
