package city

import (
	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/world"
)

func amounts(counts []catalog.ItemCount) []protocol.ItemAmount {
	out := make([]protocol.ItemAmount, 0, len(counts))
	for _, c := range counts {
		out = append(out, protocol.ItemAmount{Name: c.Item, Amount: c.Count})
	}
	return out
}

func roleData(r *catalog.Role) protocol.RoleData {
	if r == nil {
		return protocol.RoleData{}
	}
	return protocol.RoleData{
		Name:       r.Name,
		Speed:      r.Speed,
		MaxLoad:    r.MaxLoad,
		MaxBattery: r.MaxBattery,
		Tools:      append([]string{}, r.Tools...),
	}
}

func itemData(cat *catalog.Catalog) []protocol.ItemData {
	out := make([]protocol.ItemData, 0, len(cat.Items))
	for _, it := range cat.Items {
		out = append(out, protocol.ItemData{
			Name:   it.Name,
			Volume: it.Volume,
			Parts:  amounts(it.Parts),
			Tools:  append([]string{}, it.Tools...),
		})
	}
	return out
}

func facilityData(f world.Facility) protocol.FacilityData {
	loc := f.Location()
	return protocol.FacilityData{Name: f.Name(), Lat: loc.Lat, Lon: loc.Lon}
}

// visibleEntity carries only what other agents may see.
func visibleEntity(e *world.Entity) protocol.EntityData {
	return protocol.EntityData{Name: e.Name, Team: e.Team, Role: e.Role, Lat: e.Location.Lat, Lon: e.Location.Lon}
}

func (s *Simulation) fullEntity(e *world.Entity) protocol.EntityData {
	d := visibleEntity(e)
	battery := e.Battery
	load := e.Load(s.world.Catalog())
	d.Battery = &battery
	d.Load = &load
	d.Action = &protocol.ActionData{
		Type:   e.LastAction.Type,
		Params: append([]string{}, e.LastAction.Params...),
		Result: e.LastResult,
	}
	if f, ok := s.world.FacilityAt(e.Location); ok {
		d.Facility = f.Name()
	}
	if e.Route != nil {
		for i, wp := range e.Route.Waypoints {
			d.Route = append(d.Route, protocol.WaypointData{Index: i, Lat: wp.Lat, Lon: wp.Lon})
		}
	}
	d.Items = amounts(e.Inventory.Sorted())
	return d
}

func (s *Simulation) shopData() []protocol.ShopData {
	out := make([]protocol.ShopData, 0, len(s.world.Shops()))
	for _, shop := range s.world.Shops() {
		sd := protocol.ShopData{FacilityData: facilityData(shop), Restock: shop.Restock, Items: []protocol.StockData{}}
		for _, o := range shop.Offers() {
			sd.Items = append(sd.Items, protocol.StockData{Name: o.Item, Price: o.Price, Amount: o.Amount})
		}
		out = append(out, sd)
	}
	return out
}

func (s *Simulation) workshopData() []protocol.FacilityData {
	out := make([]protocol.FacilityData, 0, len(s.world.Workshops()))
	for _, w := range s.world.Workshops() {
		out = append(out, facilityData(w))
	}
	return out
}

func (s *Simulation) dumpData() []protocol.FacilityData {
	out := make([]protocol.FacilityData, 0, len(s.world.Dumps()))
	for _, d := range s.world.Dumps() {
		out = append(out, facilityData(d))
	}
	return out
}

func (s *Simulation) stationData(withBlackout bool) []protocol.ChargingStationData {
	out := make([]protocol.ChargingStationData, 0, len(s.world.ChargingStations()))
	for _, cs := range s.world.ChargingStations() {
		d := protocol.ChargingStationData{FacilityData: facilityData(cs), Rate: cs.Rate}
		if withBlackout {
			d.Blackout = cs.Blackout()
		}
		out = append(out, d)
	}
	return out
}

func (s *Simulation) resourceNodeData() []protocol.ResourceNodeData {
	out := make([]protocol.ResourceNodeData, 0, len(s.world.ResourceNodes()))
	for _, n := range s.world.ResourceNodes() {
		out = append(out, protocol.ResourceNodeData{FacilityData: facilityData(n), Resource: n.Resource})
	}
	return out
}

func storedData(items []world.StoredItem) []protocol.StoredData {
	out := make([]protocol.StoredData, 0, len(items))
	for _, it := range items {
		out = append(out, protocol.StoredData{Name: it.Item, Stored: it.Stored, Delivered: it.Delivered})
	}
	return out
}

// storageData shows one team's contents, or every team's when team is "".
func (s *Simulation) storageData(team string) []protocol.StorageData {
	out := make([]protocol.StorageData, 0, len(s.world.Storages()))
	for _, st := range s.world.Storages() {
		d := protocol.StorageData{FacilityData: facilityData(st), TotalCapacity: st.Capacity, UsedCapacity: st.Used()}
		if team != "" {
			d.Items = storedData(st.Contents(team))
		} else {
			d.AllItems = map[string][]protocol.StoredData{}
			for _, t := range s.world.TeamNames() {
				d.AllItems[t] = storedData(st.Contents(t))
			}
		}
		out = append(out, d)
	}
	return out
}

// jobData renders a job for agents; full adds the bookkeeping only
// snapshots carry.
func jobData(j *world.Job, full bool) protocol.JobData {
	d := protocol.JobData{
		ID:       j.Name,
		Kind:     string(j.Kind),
		Storage:  j.Storage,
		Reward:   j.Reward,
		Start:    j.Begin,
		End:      j.End,
		Required: amounts(j.Required),
	}
	if j.Kind == world.JobPosted {
		d.Poster = j.Poster
	}
	if a := j.Auction; a != nil {
		d.AuctionTime = a.AuctionTime
		d.Fine = a.Fine
		if a.Lowest != nil {
			lowest := a.Lowest.Amount
			d.LowestBid = &lowest
		}
	}
	if m := j.Mission; m != nil {
		d.Fine = m.Fine
		d.MissionID = m.ID
	}
	if !full {
		return d
	}
	d.Poster = j.Poster
	d.Status = string(j.Status)
	if a := j.Auction; a != nil {
		d.Winner = a.Winner
		if a.Lowest != nil {
			d.Bid = &protocol.BidData{Team: a.Lowest.Team, Amount: a.Lowest.Amount}
		}
	}
	if j.Mission != nil {
		d.Team = j.Mission.Team
	}
	if j.Status == world.JobCompleted && j.Auction == nil {
		d.Winner = j.CompletedBy
	}
	for _, team := range j.DeliveringTeams() {
		if d.Delivered == nil {
			d.Delivered = map[string][]protocol.ItemAmount{}
		}
		d.Delivered[team] = amounts(j.DeliveredBy(team).Sorted())
	}
	return d
}

func (s *Simulation) percepts(step int) map[string]protocol.StepPercept {
	entities := s.world.Entities()
	out := make(map[string]protocol.StepPercept, len(entities))
	if len(entities) == 0 {
		return out
	}

	shops := s.shopData()
	workshops := s.workshopData()
	stations := s.stationData(false)
	dumps := s.dumpData()
	nodes := s.resourceNodeData()

	byTeam := map[string][]protocol.EntityData{}
	for _, e := range entities {
		byTeam[e.Team] = append(byTeam[e.Team], visibleEntity(e))
	}
	storages := map[string][]protocol.StorageData{}
	jobs := map[string][]protocol.JobData{}
	money := map[string]int64{}
	for _, t := range s.world.Teams() {
		money[t.Name] = t.Money
		storages[t.Name] = s.storageData(t.Name)
		list := []protocol.JobData{}
		for _, j := range s.world.Jobs() {
			if j.VisibleTo(t.Name) {
				list = append(list, jobData(j, false))
			}
		}
		jobs[t.Name] = list
	}

	for _, e := range entities {
		out[e.Name] = protocol.StepPercept{
			Step:             step,
			Self:             s.fullEntity(e),
			Team:             e.Team,
			Money:            money[e.Team],
			Entities:         byTeam[e.Team],
			Shops:            shops,
			Workshops:        workshops,
			ChargingStations: stations,
			Dumps:            dumps,
			ResourceNodes:    nodes,
			Storages:         storages[e.Team],
			Jobs:             jobs[e.Team],
		}
	}
	return out
}

// StaticData describes the run: identity, map, teams, roles and items.
type StaticData struct {
	SimID       string              `json:"simId"`
	Steps       int                 `json:"steps"`
	Map         string              `json:"map"`
	SeedCapital int64               `json:"seedCapital"`
	Teams       []string            `json:"teams"`
	Roles       []protocol.RoleData `json:"roles"`
	Items       []protocol.ItemData `json:"items"`
}

func (s *Simulation) StaticData() StaticData {
	cat := s.world.Catalog()
	roles := make([]protocol.RoleData, 0, len(cat.Roles))
	for _, r := range cat.Roles {
		roles = append(roles, roleData(r))
	}
	return StaticData{
		SimID:       s.simID,
		Steps:       s.cfg.Steps,
		Map:         s.world.MapName(),
		SeedCapital: s.cfg.SeedCapital,
		Teams:       s.world.TeamNames(),
		Roles:       roles,
		Items:       s.items,
	}
}

// Snapshot is the full dynamic state of one step.
type Snapshot struct {
	Step             int                            `json:"step"`
	Teams            map[string]int64               `json:"teams"`
	Entities         []protocol.EntityData          `json:"entities"`
	Shops            []protocol.ShopData            `json:"shops"`
	Workshops        []protocol.FacilityData        `json:"workshops"`
	ChargingStations []protocol.ChargingStationData `json:"chargingStations"`
	Dumps            []protocol.FacilityData        `json:"dumps"`
	ResourceNodes    []protocol.ResourceNodeData    `json:"resourceNodes"`
	Jobs             []protocol.JobData             `json:"jobs"`
	Storages         []protocol.StorageData         `json:"storages"`
}

func (s *Simulation) Snapshot() Snapshot {
	snap := Snapshot{
		Step:             s.step,
		Teams:            map[string]int64{},
		Entities:         make([]protocol.EntityData, 0, len(s.world.Entities())),
		Shops:            s.shopData(),
		Workshops:        s.workshopData(),
		ChargingStations: s.stationData(true),
		Dumps:            s.dumpData(),
		ResourceNodes:    s.resourceNodeData(),
		Jobs:             make([]protocol.JobData, 0, len(s.world.Jobs())),
		Storages:         s.storageData(""),
	}
	for _, t := range s.world.Teams() {
		snap.Teams[t.Name] = t.Money
	}
	for _, e := range s.world.Entities() {
		snap.Entities = append(snap.Entities, s.fullEntity(e))
	}
	for _, j := range s.world.Jobs() {
		snap.Jobs = append(snap.Jobs, jobData(j, true))
	}
	return snap
}
