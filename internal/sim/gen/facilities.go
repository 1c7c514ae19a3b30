package gen

import (
	"fmt"

	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/route"
	"cityrun.ai/internal/sim/world"
)

const locationAttempts = 100

type placer struct {
	g    *Generator
	m    route.Map
	used map[string]bool
}

// unique asks the map for a random location inside b (or anywhere when b
// is nil) until one is found that no facility uses yet.
func (p *placer) unique(b *route.Bounds) route.Location {
	draw := func() route.Location {
		if b == nil {
			return p.m.RandomLocation(p.g.rng)
		}
		return p.m.RandomLocationInBounds(p.g.rng, *b)
	}
	loc := draw()
	for i := 0; i < locationAttempts && p.used[loc.Key()]; i++ {
		loc = draw()
	}
	p.used[loc.Key()] = true
	return loc
}

// quadrants places facilities of one kind over the quadrant grid and
// returns how many it made. Density below 1 is a per-quadrant probability,
// otherwise the whole-number count per quadrant.
func (p *placer) quadrants(density float64, place func(loc route.Location)) int {
	b := p.m.Bounds()
	q := p.g.cfg.Facilities.QuadSize
	made := 0
	for lat := b.MinLat; lat < b.MaxLat; lat += q {
		for lon := b.MinLon; lon < b.MaxLon; lon += q {
			n := 0
			if density < 1 {
				if p.g.rng.Float64() < density {
					n = 1
				}
			} else {
				n = int(density)
			}
			quad := route.Bounds{MinLat: lat, MaxLat: lat + q, MinLon: lon, MaxLon: lon + q}
			for i := 0; i < n; i++ {
				place(p.unique(&quad))
				made++
			}
		}
	}
	return made
}

// GenerateFacilities places every facility kind and adds them to w.
func (g *Generator) GenerateFacilities(w *world.World) ([]world.Facility, error) {
	fc := g.cfg.Facilities
	if fc.QuadSize <= 0 {
		return nil, fmt.Errorf("quadSize must be > 0")
	}
	cat := w.Catalog()
	p := &placer{g: g, m: w.Map(), used: map[string]bool{}}
	var out []world.Facility
	add := func(f world.Facility) {
		out = append(out, f)
	}

	// charging stations
	n := 0
	newStation := func(loc route.Location) {
		cs := fc.ChargingStations
		add(&world.ChargingStation{Site: world.Site{ID: fmt.Sprintf("chargingStation%d", n), Loc: loc}, Rate: randBetween(g.rng, cs.RateMin, cs.RateMax)})
		n++
	}
	if p.quadrants(fc.ChargingStations.Density, newStation) == 0 {
		newStation(p.unique(nil))
	}

	// shops
	var shops []*world.Shop
	n = 0
	newShop := func(loc route.Location) {
		s := &world.Shop{Site: world.Site{ID: fmt.Sprintf("shop%d", n), Loc: loc}, Restock: randBetween(g.rng, fc.Shops.RestockMin, fc.Shops.RestockMax)}
		shops = append(shops, s)
		add(s)
		n++
	}
	if p.quadrants(fc.Shops.Density, newShop) == 0 {
		newShop(p.unique(nil))
	}
	g.fillShops(cat, shops)

	// dumps
	n = 0
	newDump := func(loc route.Location) {
		add(&world.Dump{Site: world.Site{ID: fmt.Sprintf("dump%d", n), Loc: loc}})
		n++
	}
	if p.quadrants(fc.Dumps.Density, newDump) == 0 {
		newDump(p.unique(nil))
	}

	// workshops
	n = 0
	newWorkshop := func(loc route.Location) {
		add(&world.Workshop{Site: world.Site{ID: fmt.Sprintf("workshop%d", n), Loc: loc}})
		n++
	}
	if p.quadrants(fc.Workshops.Density, newWorkshop) == 0 {
		newWorkshop(p.unique(nil))
	}

	// storage
	n = 0
	teams := w.TeamNames()
	newStorage := func(loc route.Location) {
		capacity := randBetween(g.rng, fc.Storage.CapacityMin, fc.Storage.CapacityMax)
		add(world.NewStorage(fmt.Sprintf("storage%d", n), loc, capacity, teams))
		n++
	}
	if p.quadrants(fc.Storage.Density, newStorage) == 0 {
		newStorage(p.unique(nil))
	}

	// resource nodes, round-robin over resources
	resources := cat.Resources
	if len(resources) == 0 {
		g.log.Error("no resources in item graph, skipping resource nodes")
	} else {
		n = 0
		newNode := func(loc route.Location) {
			rn := fc.ResourceNodes
			add(&world.ResourceNode{
				Site:            world.Site{ID: fmt.Sprintf("resourceNode%d", n), Loc: loc},
				Resource:        resources[n%len(resources)],
				GatherFrequency: randBetween(g.rng, rn.GatherFrequencyMin, rn.GatherFrequencyMax),
			})
			n++
		}
		p.quadrants(fc.ResourceNodes.Density, newNode)
		for n < len(resources) {
			newNode(p.unique(nil))
		}
	}

	for _, f := range out {
		if err := w.AddFacility(f); err != nil {
			return nil, err
		}
		attrs := []any{"facility", f.Name(), "kind", f.Kind(), "lat", f.Location().Lat, "lon", f.Location().Lon}
		if rn, ok := f.(*world.ResourceNode); ok {
			attrs = append(attrs, "resource", rn.Resource)
		}
		g.log.Info("generated facility", attrs...)
	}
	return out, nil
}

// fillShops gives every shop a batch of distinct products first, then
// hands each product no shop picked to a random shop.
func (g *Generator) fillShops(cat *catalog.Catalog, shops []*world.Shop) {
	sc := g.cfg.Facilities.Shops
	var products []string
	if len(cat.Levels) > 0 {
		products = append(products, cat.Levels[0]...)
	}
	for _, t := range cat.Tools {
		products = append(products, t.Name)
	}
	price := func(name string) int {
		v, _ := cat.Value(name)
		add := float64(randBetween(g.rng, sc.PriceAddMin, sc.PriceAddMax)) / 100.0
		return int(float64(v) * add)
	}

	used := map[string]bool{}
	for _, s := range shops {
		count := min(randBetween(g.rng, sc.MinProd, sc.MaxProd), len(products))
		unused := append([]string(nil), products...)
		for j := 0; j < count; j++ {
			idx := g.rng.Intn(len(unused))
			name := unused[idx]
			p := price(name)
			s.AddItem(name, randBetween(g.rng, sc.AmountMin, sc.AmountMax), p)
			unused = append(unused[:idx], unused[idx+1:]...)
			used[name] = true
		}
	}
	if len(shops) == 0 {
		return
	}
	for _, name := range products {
		if used[name] {
			continue
		}
		s := shops[g.rng.Intn(len(shops))]
		p := price(name)
		s.AddItem(name, randBetween(g.rng, sc.AmountMin, sc.AmountMax), p)
	}
}
