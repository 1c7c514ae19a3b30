package route

import (
	"math"
	"math/rand"
)

// Grid is a road-less map: every cell inside the bounds is walkable and
// routes are straight lines cut into cell-sized steps.
type Grid struct {
	name      string
	bounds    Bounds
	cell      float64
	proximity float64
}

func NewGrid(name string, b Bounds, cellSize, proximity float64) *Grid {
	if cellSize <= 0 {
		cellSize = 0.0005
	}
	if proximity <= 0 {
		proximity = cellSize / 2
	}
	return &Grid{name: name, bounds: b, cell: cellSize, proximity: proximity}
}

func (g *Grid) Name() string   { return g.name }
func (g *Grid) Bounds() Bounds { return g.bounds }

func (g *Grid) RandomLocation(rng *rand.Rand) Location {
	return g.RandomLocationInBounds(rng, g.bounds)
}

func (g *Grid) RandomLocationInBounds(rng *rand.Rand, b Bounds) Location {
	b = b.Intersect(g.bounds)
	if b.MaxLat < b.MinLat || b.MaxLon < b.MinLon {
		return g.bounds.Center()
	}
	l := Location{
		Lat: b.MinLat + rng.Float64()*(b.MaxLat-b.MinLat),
		Lon: b.MinLon + rng.Float64()*(b.MaxLon-b.MinLon),
	}
	return g.clamp(g.snap(l), b)
}

func (g *Grid) snap(l Location) Location {
	return Location{
		Lat: g.bounds.MinLat + math.Round((l.Lat-g.bounds.MinLat)/g.cell)*g.cell,
		Lon: g.bounds.MinLon + math.Round((l.Lon-g.bounds.MinLon)/g.cell)*g.cell,
	}
}

func (g *Grid) clamp(l Location, b Bounds) Location {
	l.Lat = math.Min(math.Max(l.Lat, b.MinLat), b.MaxLat)
	l.Lon = math.Min(math.Max(l.Lon, b.MinLon), b.MaxLon)
	return l
}

func (g *Grid) Route(from, to Location) (*Route, bool) {
	if !g.bounds.Contains(to) || !g.bounds.Contains(from) {
		return nil, false
	}
	n := int(math.Ceil(from.Distance(to) / g.cell))
	if n == 0 {
		return &Route{}, true
	}
	wps := make([]Location, n)
	for i := 1; i < n; i++ {
		f := float64(i) / float64(n)
		wps[i-1] = Location{Lat: from.Lat + (to.Lat-from.Lat)*f, Lon: from.Lon + (to.Lon-from.Lon)*f}
	}
	wps[n-1] = to
	return &Route{Waypoints: wps}, true
}

func (g *Grid) Near(a, b Location) bool { return a.Distance(b) <= g.proximity }
