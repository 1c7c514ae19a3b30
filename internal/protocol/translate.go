package protocol

import (
	"encoding/json"
	"fmt"
)

// Literal is one flat fact handed to agent code, e.g. money(500).
type Literal struct {
	Name string
	Args []any
}

func (l Literal) String() string {
	return fmt.Sprintf("%s%v", l.Name, l.Args)
}

func lit(name string, args ...any) Literal { return Literal{Name: name, Args: args} }

// Translate flattens a server message into literals for agent code.
// Message types it does not know produce no literals and no error, so a
// client keeps working next to scenarios it was not written for.
func Translate(msg Message) ([]Literal, error) {
	switch msg.Type {
	case TypeSimStart:
		var c SimStart
		if err := json.Unmarshal(msg.Content, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Type, err)
		}
		return simStartLiterals(c.Percept), nil
	case TypeRequestAction:
		var c RequestAction
		if err := json.Unmarshal(msg.Content, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Type, err)
		}
		return requestActionLiterals(c), nil
	case TypeSimEnd:
		var c SimEnd
		if err := json.Unmarshal(msg.Content, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Type, err)
		}
		return []Literal{lit("ranking", c.Ranking), lit("score", c.Score)}, nil
	}
	return []Literal{}, nil
}

func simStartLiterals(p InitialPercept) []Literal {
	out := []Literal{
		lit("name", p.Agent),
		lit("team", p.Team),
		lit("steps", p.Steps),
		lit("id", p.SimID),
		lit("map", p.Map),
		lit("seedCapital", p.SeedCapital),
		lit("role", p.Role.Name, p.Role.Speed, p.Role.MaxLoad, p.Role.MaxBattery),
	}
	for _, it := range p.Items {
		out = append(out, lit("item", it.Name, it.Volume, len(it.Parts), len(it.Tools)))
	}
	return out
}

func requestActionLiterals(r RequestAction) []Literal {
	p := r.Percept
	out := []Literal{
		lit("actionID", r.ID),
		lit("deadline", r.Deadline),
		lit("step", p.Step),
		lit("money", p.Money),
		lit("lat", p.Self.Lat),
		lit("lon", p.Self.Lon),
	}
	if p.Self.Battery != nil {
		out = append(out, lit("charge", *p.Self.Battery))
	}
	if p.Self.Load != nil {
		out = append(out, lit("load", *p.Self.Load))
	}
	if a := p.Self.Action; a != nil {
		out = append(out, lit("lastAction", a.Type), lit("lastActionResult", a.Result))
	}
	if p.Self.Facility != "" {
		out = append(out, lit("facility", p.Self.Facility))
	}
	out = append(out, lit("routeLength", len(p.Self.Route)))
	for _, it := range p.Self.Items {
		out = append(out, lit("hasItem", it.Name, it.Amount))
	}
	for _, e := range p.Entities {
		out = append(out, lit("entity", e.Name, e.Team, e.Lat, e.Lon, e.Role))
	}
	for _, s := range p.Shops {
		out = append(out, lit("shop", s.Name, s.Lat, s.Lon, s.Restock))
	}
	for _, w := range p.Workshops {
		out = append(out, lit("workshop", w.Name, w.Lat, w.Lon))
	}
	for _, c := range p.ChargingStations {
		out = append(out, lit("chargingStation", c.Name, c.Lat, c.Lon, c.Rate))
	}
	for _, d := range p.Dumps {
		out = append(out, lit("dump", d.Name, d.Lat, d.Lon))
	}
	for _, n := range p.ResourceNodes {
		out = append(out, lit("resourceNode", n.Name, n.Lat, n.Lon, n.Resource))
	}
	for _, s := range p.Storages {
		out = append(out, lit("storage", s.Name, s.Lat, s.Lon, s.TotalCapacity, s.UsedCapacity))
	}
	for _, j := range p.Jobs {
		switch j.Kind {
		case "auction":
			out = append(out, lit("auction", j.ID, j.Storage, j.Reward, j.Start, j.End, j.Fine, j.AuctionTime))
		case "mission":
			out = append(out, lit("mission", j.ID, j.Storage, j.Reward, j.Start, j.End, j.Fine, j.MissionID))
		case "posted":
			out = append(out, lit("posted", j.ID, j.Storage, j.Reward, j.Start, j.End))
		default:
			out = append(out, lit("job", j.ID, j.Storage, j.Reward, j.Start, j.End))
		}
	}
	return out
}
