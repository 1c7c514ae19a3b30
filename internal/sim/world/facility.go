package world

import (
	"sort"

	"cityrun.ai/internal/sim/route"
)

type Kind string

const (
	KindShop            Kind = "shop"
	KindStorage         Kind = "storage"
	KindWorkshop        Kind = "workshop"
	KindChargingStation Kind = "chargingStation"
	KindDump            Kind = "dump"
	KindResourceNode    Kind = "resourceNode"
)

// Kinds lists facility kinds in generation order.
var Kinds = []Kind{KindChargingStation, KindShop, KindDump, KindWorkshop, KindStorage, KindResourceNode}

// Facility is a named, located world object.
type Facility interface {
	Name() string
	Location() route.Location
	Kind() Kind
}

type Site struct {
	ID  string
	Loc route.Location
}

func (s *Site) Name() string             { return s.ID }
func (s *Site) Location() route.Location { return s.Loc }

type Workshop struct{ Site }

func (*Workshop) Kind() Kind { return KindWorkshop }

type Dump struct{ Site }

func (*Dump) Kind() Kind { return KindDump }

type ChargingStation struct {
	Site
	Rate     int
	blackout int
}

func (*ChargingStation) Kind() Kind { return KindChargingStation }

func (c *ChargingStation) InitiateBlackout(steps int) {
	if steps > 0 {
		c.blackout = steps
	}
}

// DecrementBlackout counts one outage step down and returns what is left.
func (c *ChargingStation) DecrementBlackout() int {
	if c.blackout > 0 {
		c.blackout--
	}
	return c.blackout
}

func (c *ChargingStation) Blackout() int { return c.blackout }
func (c *ChargingStation) Working() bool { return c.blackout == 0 }

type ResourceNode struct {
	Site
	Resource        string
	GatherFrequency int
	progress        int
}

func (*ResourceNode) Kind() Kind { return KindResourceNode }

// Gather adds one unit of effort and reports whether a resource was produced.
func (r *ResourceNode) Gather() bool {
	freq := r.GatherFrequency
	if freq < 1 {
		freq = 1
	}
	r.progress++
	if r.progress >= freq {
		r.progress = 0
		return true
	}
	return false
}

func (r *ResourceNode) Progress() int { return r.progress }

type Offer struct {
	Item   string
	Price  int
	Amount int
}

type Shop struct {
	Site
	Restock int
	offers  []*Offer
	counter int
}

func (*Shop) Kind() Kind { return KindShop }

// AddItem offers an item or raises its stock; the first price set sticks.
func (s *Shop) AddItem(item string, amount, price int) {
	if o := s.offer(item); o != nil {
		o.Amount += amount
		return
	}
	s.offers = append(s.offers, &Offer{Item: item, Price: price, Amount: amount})
}

func (s *Shop) offer(item string) *Offer {
	for _, o := range s.offers {
		if o.Item == item {
			return o
		}
	}
	return nil
}

func (s *Shop) Offers() []Offer {
	out := make([]Offer, 0, len(s.offers))
	for _, o := range s.offers {
		out = append(out, *o)
	}
	return out
}

func (s *Shop) Price(item string) (int, bool) {
	o := s.offer(item)
	if o == nil {
		return 0, false
	}
	return o.Price, true
}

func (s *Shop) Stock(item string) int {
	if o := s.offer(item); o != nil {
		return o.Amount
	}
	return 0
}

// Sell removes amount from stock and returns the total price.
func (s *Shop) Sell(item string, amount int) (int, bool) {
	o := s.offer(item)
	if o == nil || amount <= 0 || o.Amount < amount {
		return 0, false
	}
	o.Amount -= amount
	return o.Price * amount, true
}

// Step restocks one unit of every offered item every Restock steps.
func (s *Shop) Step() {
	if s.Restock <= 0 {
		return
	}
	s.counter++
	if s.counter < s.Restock {
		return
	}
	s.counter = 0
	for _, o := range s.offers {
		o.Amount++
	}
}

type Storage struct {
	Site
	Capacity int

	used      int
	volumes   map[string]int
	stored    map[string]Inventory
	delivered map[string]Inventory
}

func NewStorage(name string, loc route.Location, capacity int, teams []string) *Storage {
	s := &Storage{
		Site:      Site{ID: name, Loc: loc},
		Capacity:  capacity,
		volumes:   map[string]int{},
		stored:    map[string]Inventory{},
		delivered: map[string]Inventory{},
	}
	for _, t := range teams {
		s.stored[t] = Inventory{}
		s.delivered[t] = Inventory{}
	}
	return s
}

func (*Storage) Kind() Kind { return KindStorage }

func (s *Storage) Used() int      { return s.used }
func (s *Storage) FreeSpace() int { return s.Capacity - s.used }

func (s *Storage) HasTeam(team string) bool {
	_, ok := s.stored[team]
	return ok
}

// Store puts amount units of volume each into the team's stock if they fit.
func (s *Storage) Store(item string, volume, amount int, team string) bool {
	inv, ok := s.stored[team]
	if !ok || amount <= 0 || volume < 0 {
		return false
	}
	if volume*amount > s.FreeSpace() {
		return false
	}
	inv.Add(item, amount)
	s.volumes[item] = volume
	s.used += volume * amount
	return true
}

func (s *Storage) Retrieve(item string, amount int, team string) bool {
	inv, ok := s.stored[team]
	if !ok || !inv.Remove(item, amount) {
		return false
	}
	s.used -= s.volumes[item] * amount
	return true
}

// AddDelivered credits partial job deliveries; they take no space.
func (s *Storage) AddDelivered(item string, amount int, team string) {
	if inv, ok := s.delivered[team]; ok {
		inv.Add(item, amount)
	}
}

func (s *Storage) RetrieveDelivered(item string, amount int, team string) bool {
	inv, ok := s.delivered[team]
	return ok && inv.Remove(item, amount)
}

func (s *Storage) Stored(item, team string) int    { return s.stored[team].Count(item) }
func (s *Storage) Delivered(item, team string) int { return s.delivered[team].Count(item) }

// Contents lists every item a team has stored or delivered here.
func (s *Storage) Contents(team string) []StoredItem {
	names := map[string]bool{}
	for n := range s.stored[team] {
		names[n] = true
	}
	for n := range s.delivered[team] {
		names[n] = true
	}
	out := make([]StoredItem, 0, len(names))
	for n := range names {
		out = append(out, StoredItem{Item: n, Stored: s.Stored(n, team), Delivered: s.Delivered(n, team)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

type StoredItem struct {
	Item      string
	Stored    int
	Delivered int
}
