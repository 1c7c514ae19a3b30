package world

import (
	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/route"
)

// Action is one submitted agent action.
type Action struct {
	Type   string   `json:"type"`
	Params []string `json:"params,omitempty"`
}

var NoAction = Action{Type: "noAction"}

type Entity struct {
	Name string
	Team string
	Role string

	Location route.Location
	Route    *route.Route

	Battery   int
	Inventory Inventory

	LastAction Action
	LastResult string
}

// Load is the summed volume of everything the entity carries.
func (e *Entity) Load(cat *catalog.Catalog) int {
	load := 0
	for name, n := range e.Inventory {
		if v, ok := cat.Volume(name); ok {
			load += v * n
		}
	}
	return load
}

// RouteLength is the number of waypoints left, 0 when not moving.
func (e *Entity) RouteLength() int { return e.Route.Len() }

func (e *Entity) ClearRoute() { e.Route = nil }
