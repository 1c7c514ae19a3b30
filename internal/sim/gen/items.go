package gen

import (
	"fmt"
	"sort"

	"cityrun.ai/internal/sim/catalog"
)

// GenerateTools creates the tool set and registers each tool on its roles.
func (g *Generator) GenerateTools(cat *catalog.Catalog) ([]*catalog.Tool, error) {
	ic := g.cfg.Items
	amount := randBetween(g.rng, ic.ToolsMin, ic.ToolsMax)
	roles := cat.Roles
	if len(roles) == 0 {
		g.log.Error("no roles configured, skipping tools")
		return nil, nil
	}
	maxRole := roles[0]
	for _, r := range roles[1:] {
		if r.MaxLoad > maxRole.MaxLoad {
			maxRole = r
		}
	}
	g.maxCapacity = maxRole.MaxLoad

	var tools []*catalog.Tool
	for i := 0; i < amount; i++ {
		volume := randBetween(g.rng, ic.MinVol, ic.MaxVol)
		value := randBetween(g.rng, ic.ValueMin, ic.ValueMax)
		set := map[string]bool{}

		r := roles[g.rng.Intn(len(roles))]
		if r.MaxLoad > volume {
			set[r.Name] = true
		} else {
			if volume > g.maxCapacity {
				volume = int(float64(g.maxCapacity) * 0.9)
			}
			set[maxRole.Name] = true
		}
		if g.rng.Intn(2) < 1 {
			r = roles[g.rng.Intn(len(roles))]
			if r.MaxLoad > volume {
				set[r.Name] = true
			}
		}
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		sort.Strings(names)

		t := &catalog.Tool{Name: fmt.Sprintf("tool%d", i), Volume: volume, Value: value, Roles: names}
		if err := cat.AddTool(t); err != nil {
			return nil, err
		}
		tools = append(tools, t)
		g.log.Info("generated tool", "tool", t.Name, "volume", t.Volume, "value", t.Value, "roles", t.Roles)
	}
	return tools, nil
}

// GenerateItems builds the layered item graph into cat and finalizes it.
// Layer 0 holds base items, the last of which are resources. Every item on
// layer i requires one item from layer i-1 (resources for i = 1) plus
// further parts from layers below i-1.
func (g *Generator) GenerateItems(cat *catalog.Catalog) error {
	ic := g.cfg.Items
	if g.maxCapacity == 0 {
		g.maxCapacity = cat.MaxLoad()
	}
	baseAmount := randBetween(g.rng, ic.BaseItemsMin, ic.BaseItemsMax)
	resourceAmount := randBetween(g.rng, ic.ResourcesMin, ic.ResourcesMax)

	var levels [][]*catalog.Item
	var base []*catalog.Item
	count := 0
	for i := 0; i < baseAmount+resourceAmount; i++ {
		it := &catalog.Item{
			Name:   fmt.Sprintf("item%d", count),
			Volume: randBetween(g.rng, ic.MinVol, ic.MaxVol),
			Value:  randBetween(g.rng, ic.ValueMin, ic.ValueMax),
		}
		count++
		if err := cat.AddItem(it); err != nil {
			return err
		}
		base = append(base, it)
	}
	resources := base[baseAmount:]
	for _, r := range resources {
		if err := cat.MarkResource(r.Name); err != nil {
			return err
		}
	}
	levels = append(levels, base)

	toolNames := make([]string, 0, len(cat.Tools))
	for _, t := range cat.Tools {
		toolNames = append(toolNames, t.Name)
	}

	depth := randBetween(g.rng, ic.GraphDepthMin, ic.GraphDepthMax)
	levelAmount := baseAmount
	for i := 1; i <= depth && len(base) > 0; i++ {
		levelAmount = max(1, levelAmount-randBetween(g.rng, ic.LevelDecreaseMin, ic.LevelDecreaseMax))
		var level []*catalog.Item
		for j := 0; j < levelAmount; j++ {
			parts := map[string]int{}
			want := min(randBetween(g.rng, ic.MinReq, ic.MaxReq), len(base))

			anchorPool := append([]*catalog.Item(nil), levels[i-1]...)
			if i == 1 && len(resources) > 0 {
				anchorPool = append([]*catalog.Item(nil), resources...)
			}
			g.rng.Shuffle(len(anchorPool), func(a, b int) { anchorPool[a], anchorPool[b] = anchorPool[b], anchorPool[a] })
			anchor := anchorPool[0]
			parts[anchor.Name] = randBetween(g.rng, ic.ReqAmountMin, ic.ReqAmountMax)
			want--

			var possible []*catalog.Item
			if i == 1 {
				possible = append(possible, levels[0]...)
			} else {
				for k := 0; k < i-1; k++ {
					possible = append(possible, levels[k]...)
				}
			}
			possible = without(possible, anchor)
			g.rng.Shuffle(len(possible), func(a, b int) { possible[a], possible[b] = possible[b], possible[a] })
			for l := 0; l < min(want, len(possible)); l++ {
				parts[possible[l].Name] = randBetween(g.rng, ic.ReqAmountMin, ic.ReqAmountMax)
			}

			volume := 0
			for _, pc := range catalog.SortedCounts(parts) {
				v, _ := cat.Volume(pc.Item)
				volume += v * pc.Count
			}
			volume -= int(g.rng.Float64() * 0.5 * float64(volume))
			if volume > g.maxCapacity {
				volume = int(float64(g.maxCapacity) * 0.9)
			}

			it := &catalog.Item{
				Name:   fmt.Sprintf("item%d", count),
				Volume: volume,
				Level:  i,
				Parts:  catalog.SortedCounts(parts),
			}
			count++

			if len(toolNames) > 0 && g.rng.Float64() < ic.ToolProbability {
				tmp := append([]string(nil), toolNames...)
				g.rng.Shuffle(len(tmp), func(a, b int) { tmp[a], tmp[b] = tmp[b], tmp[a] })
				it.Tools = append(it.Tools, tmp[0])
				if g.rng.Float64() < ic.ToolProbability && len(tmp) > 1 {
					it.Tools = append(it.Tools, tmp[1])
				}
				sort.Strings(it.Tools)
			}

			if err := cat.AddItem(it); err != nil {
				return err
			}
			level = append(level, it)
		}
		levels = append(levels, level)
	}

	if err := cat.Finalize(); err != nil {
		return fmt.Errorf("item graph: %w", err)
	}
	for i, level := range levels {
		for _, it := range level {
			g.log.Info("generated item", "level", i, "item", it.Name, "volume", it.Volume,
				"assemble_value", it.AssembleValue, "parts", it.Parts, "tools", it.Tools)
		}
	}
	return nil
}

func without(items []*catalog.Item, drop *catalog.Item) []*catalog.Item {
	out := items[:0]
	for _, it := range items {
		if it != drop {
			out = append(out, it)
		}
	}
	return out
}
