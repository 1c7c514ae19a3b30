package route

import (
	"fmt"
	"math"
	"math/rand"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key identifies a location at 1e-5 degree resolution.
func (l Location) Key() string { return fmt.Sprintf("%.5f,%.5f", l.Lat, l.Lon) }

func (l Location) Distance(o Location) float64 {
	return math.Hypot(l.Lat-o.Lat, l.Lon-o.Lon)
}

type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b Bounds) Contains(l Location) bool {
	return l.Lat >= b.MinLat && l.Lat <= b.MaxLat && l.Lon >= b.MinLon && l.Lon <= b.MaxLon
}

func (b Bounds) Intersect(o Bounds) Bounds {
	return Bounds{
		MinLat: math.Max(b.MinLat, o.MinLat),
		MaxLat: math.Min(b.MaxLat, o.MaxLat),
		MinLon: math.Max(b.MinLon, o.MinLon),
		MaxLon: math.Min(b.MaxLon, o.MaxLon),
	}
}

func (b Bounds) Center() Location {
	return Location{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Route is the remaining path of a moving entity. Each waypoint is one
// movement unit apart; the last one is the destination.
type Route struct {
	Waypoints []Location `json:"waypoints"`
}

func (r *Route) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Waypoints)
}

func (r *Route) Destination() (Location, bool) {
	if r.Len() == 0 {
		return Location{}, false
	}
	return r.Waypoints[len(r.Waypoints)-1], true
}

// Advance consumes up to n waypoints and returns the location reached.
func (r *Route) Advance(n int) (Location, bool) {
	if r.Len() == 0 || n <= 0 {
		return Location{}, false
	}
	if n > len(r.Waypoints) {
		n = len(r.Waypoints)
	}
	at := r.Waypoints[n-1]
	r.Waypoints = r.Waypoints[n:]
	return at, true
}

// Map is the routing service used by generation and movement.
type Map interface {
	Name() string
	Bounds() Bounds
	RandomLocation(rng *rand.Rand) Location
	RandomLocationInBounds(rng *rand.Rand, b Bounds) Location
	Route(from, to Location) (*Route, bool)
	Near(a, b Location) bool
}
