package world

import (
	"errors"
	"fmt"
	"sort"

	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/route"
)

var (
	ErrUnknownStorage = errors.New("unknown storage")
	ErrUnknownTeam    = errors.New("unknown team")
	ErrDuplicate      = errors.New("duplicate name")
)

type Config struct {
	ID          string
	Steps       int
	SeedCapital int64
	Map         route.Map
	Catalog     *catalog.Catalog
}

// World is the authoritative state of one simulation run. It is owned by a
// single goroutine; nothing in here locks.
type World struct {
	cfg Config

	teams    []*Team
	teamIdx  map[string]*Team
	entities []*Entity
	entIdx   map[string]*Entity

	facilities []Facility
	facIdx     map[string]Facility
	facAt      map[string]Facility

	shops     []*Shop
	storages  []*Storage
	workshops []*Workshop
	stations  []*ChargingStation
	dumps     []*Dump
	nodes     []*ResourceNode

	jobs    []*Job
	jobIdx  map[string]*Job
	nextJob int
}

func New(cfg Config) *World {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.New()
	}
	return &World{
		cfg:     cfg,
		teamIdx: map[string]*Team{},
		entIdx:  map[string]*Entity{},
		facIdx:  map[string]Facility{},
		facAt:   map[string]Facility{},
		jobIdx:  map[string]*Job{},
	}
}

func (w *World) ID() string                { return w.cfg.ID }
func (w *World) Steps() int                { return w.cfg.Steps }
func (w *World) SeedCapital() int64        { return w.cfg.SeedCapital }
func (w *World) Map() route.Map            { return w.cfg.Map }
func (w *World) Catalog() *catalog.Catalog { return w.cfg.Catalog }

func (w *World) MapName() string {
	if w.cfg.Map == nil {
		return ""
	}
	return w.cfg.Map.Name()
}

func (w *World) AddTeam(name string) (*Team, error) {
	if _, ok := w.teamIdx[name]; ok {
		return nil, fmt.Errorf("team %q: %w", name, ErrDuplicate)
	}
	t := &Team{Name: name, Money: w.cfg.SeedCapital}
	w.teams = append(w.teams, t)
	w.teamIdx[name] = t
	return t, nil
}

func (w *World) Teams() []*Team { return w.teams }

func (w *World) TeamNames() []string {
	out := make([]string, len(w.teams))
	for i, t := range w.teams {
		out[i] = t.Name
	}
	return out
}

func (w *World) Team(name string) (*Team, bool) {
	t, ok := w.teamIdx[name]
	return t, ok
}

// AddEntity registers an agent. Entities are kept sorted by name.
func (w *World) AddEntity(e *Entity) error {
	if _, ok := w.entIdx[e.Name]; ok {
		return fmt.Errorf("entity %q: %w", e.Name, ErrDuplicate)
	}
	if _, ok := w.teamIdx[e.Team]; !ok {
		return fmt.Errorf("entity %q team %q: %w", e.Name, e.Team, ErrUnknownTeam)
	}
	if _, ok := w.cfg.Catalog.Role(e.Role); !ok {
		return fmt.Errorf("entity %q role %q: %w", e.Name, e.Role, catalog.ErrUnknown)
	}
	if e.Inventory == nil {
		e.Inventory = Inventory{}
	}
	if e.LastAction.Type == "" {
		e.LastAction = NoAction
	}
	w.entities = append(w.entities, e)
	sort.Slice(w.entities, func(i, j int) bool { return w.entities[i].Name < w.entities[j].Name })
	w.entIdx[e.Name] = e
	return nil
}

func (w *World) Entities() []*Entity { return w.entities }

// AgentNames returns a fresh, name-ordered slice of agent names.
func (w *World) AgentNames() []string {
	out := make([]string, len(w.entities))
	for i, e := range w.entities {
		out[i] = e.Name
	}
	return out
}

func (w *World) Entity(name string) (*Entity, bool) {
	e, ok := w.entIdx[name]
	return e, ok
}

func (w *World) RoleOf(e *Entity) *catalog.Role {
	r, _ := w.cfg.Catalog.Role(e.Role)
	return r
}

func (w *World) AddFacility(f Facility) error {
	if _, ok := w.facIdx[f.Name()]; ok {
		return fmt.Errorf("facility %q: %w", f.Name(), ErrDuplicate)
	}
	w.facilities = append(w.facilities, f)
	w.facIdx[f.Name()] = f
	if _, taken := w.facAt[f.Location().Key()]; !taken {
		w.facAt[f.Location().Key()] = f
	}
	switch v := f.(type) {
	case *Shop:
		w.shops = append(w.shops, v)
	case *Storage:
		w.storages = append(w.storages, v)
	case *Workshop:
		w.workshops = append(w.workshops, v)
	case *ChargingStation:
		w.stations = append(w.stations, v)
	case *Dump:
		w.dumps = append(w.dumps, v)
	case *ResourceNode:
		w.nodes = append(w.nodes, v)
	}
	return nil
}

func (w *World) Facilities() []Facility { return w.facilities }

func (w *World) Facility(name string) (Facility, bool) {
	f, ok := w.facIdx[name]
	return f, ok
}

// FacilityAt returns the facility placed exactly at loc.
func (w *World) FacilityAt(loc route.Location) (Facility, bool) {
	f, ok := w.facAt[loc.Key()]
	return f, ok
}

func (w *World) Shops() []*Shop                       { return w.shops }
func (w *World) Storages() []*Storage                 { return w.storages }
func (w *World) Workshops() []*Workshop               { return w.workshops }
func (w *World) ChargingStations() []*ChargingStation { return w.stations }
func (w *World) Dumps() []*Dump                       { return w.dumps }
func (w *World) ResourceNodes() []*ResourceNode       { return w.nodes }

func (w *World) Storage(name string) (*Storage, bool) {
	s, ok := w.facIdx[name].(*Storage)
	return s, ok
}

func (w *World) Shop(name string) (*Shop, bool) {
	s, ok := w.facIdx[name].(*Shop)
	return s, ok
}

// AddItemTo gives amount of a known item or tool to an entity.
func (w *World) AddItemTo(entity, item string, amount int) bool {
	e, ok := w.entIdx[entity]
	if !ok || amount <= 0 || !w.cfg.Catalog.Known(item) {
		return false
	}
	e.Inventory.Add(item, amount)
	return true
}
