package world

import (
	"errors"
	"testing"

	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/route"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	cat := catalog.New()
	if err := cat.AddRole(&catalog.Role{Name: "truck", Speed: 1, MaxLoad: 1000, MaxBattery: 100}); err != nil {
		t.Fatalf("role: %v", err)
	}
	for _, it := range []*catalog.Item{
		{Name: "item0", Volume: 10, Value: 20},
		{Name: "item1", Volume: 5, Value: 30},
		{Name: "item2", Volume: 15, Level: 1, Parts: []catalog.ItemCount{{Item: "item0", Count: 1}}},
	} {
		if err := cat.AddItem(it); err != nil {
			t.Fatalf("item: %v", err)
		}
	}
	if err := cat.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	grid := route.NewGrid("test", route.Bounds{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, 0.1, 0.01)
	w := New(Config{ID: "test", Steps: 100, SeedCapital: 1000, Map: grid, Catalog: cat})
	for _, name := range []string{"A", "B"} {
		if _, err := w.AddTeam(name); err != nil {
			t.Fatalf("team: %v", err)
		}
	}
	storeLoc := route.Location{Lat: 0.5, Lon: 0.5}
	if err := w.AddFacility(NewStorage("storage0", storeLoc, 100, w.TeamNames())); err != nil {
		t.Fatalf("storage: %v", err)
	}
	for _, e := range []*Entity{
		{Name: "agentB1", Team: "B", Role: "truck", Location: storeLoc},
		{Name: "agentA1", Team: "A", Role: "truck", Location: storeLoc},
	} {
		if err := w.AddEntity(e); err != nil {
			t.Fatalf("entity: %v", err)
		}
	}
	return w
}

func TestWorld_LookupsAndOrdering(t *testing.T) {
	w := newTestWorld(t)
	names := w.AgentNames()
	if len(names) != 2 || names[0] != "agentA1" || names[1] != "agentB1" {
		t.Fatalf("agents should be name-ordered: %v", names)
	}
	if f, ok := w.FacilityAt(route.Location{Lat: 0.5, Lon: 0.5}); !ok || f.Name() != "storage0" {
		t.Fatalf("facility at storage location: %v %v", f, ok)
	}
	if _, ok := w.Storage("nope"); ok {
		t.Fatalf("unknown storage should not resolve")
	}
	if err := w.AddEntity(&Entity{Name: "x", Team: "C", Role: "truck"}); !errors.Is(err, ErrUnknownTeam) {
		t.Fatalf("expected ErrUnknownTeam, got %v", err)
	}
	if w.AddItemTo("agentA1", "item0", 0) || w.AddItemTo("agentA1", "ghost", 1) || w.AddItemTo("ghost", "item0", 1) {
		t.Fatalf("invalid gives must be rejected")
	}
	if !w.AddItemTo("agentA1", "item0", 3) {
		t.Fatalf("valid give rejected")
	}
	e, _ := w.Entity("agentA1")
	if e.Load(w.Catalog()) != 30 {
		t.Fatalf("load: got %d want 30", e.Load(w.Catalog()))
	}
}

func TestStorage_CapacityAndDelivered(t *testing.T) {
	w := newTestWorld(t)
	s, _ := w.Storage("storage0")
	if !s.Store("item0", 10, 5, "A") {
		t.Fatalf("store within capacity failed")
	}
	if s.Store("item0", 10, 6, "A") {
		t.Fatalf("store beyond capacity succeeded")
	}
	if s.Store("item0", 10, 1, "C") {
		t.Fatalf("store for unknown team succeeded")
	}
	if s.FreeSpace() != 50 {
		t.Fatalf("free space: got %d want 50", s.FreeSpace())
	}
	if s.Retrieve("item0", 6, "A") || !s.Retrieve("item0", 2, "A") {
		t.Fatalf("retrieve bounds wrong")
	}
	if s.Used() != 30 || s.Stored("item0", "A") != 3 || s.Stored("item0", "B") != 0 {
		t.Fatalf("after retrieve: used=%d storedA=%d", s.Used(), s.Stored("item0", "A"))
	}
	s.AddDelivered("item1", 4, "B")
	if s.Used() != 30 {
		t.Fatalf("delivered items must not take space")
	}
	if !s.RetrieveDelivered("item1", 4, "B") || s.Delivered("item1", "B") != 0 {
		t.Fatalf("retrieve delivered failed")
	}
	c := s.Contents("A")
	if len(c) != 1 || c[0] != (StoredItem{Item: "item0", Stored: 3}) {
		t.Fatalf("contents: %+v", c)
	}
}

func TestShop_SellAndRestock(t *testing.T) {
	s := &Shop{Site: Site{ID: "shop0"}, Restock: 2}
	s.AddItem("item0", 1, 25)
	s.AddItem("item0", 1, 99)
	if p, _ := s.Price("item0"); p != 25 || s.Stock("item0") != 2 {
		t.Fatalf("price=%d stock=%d", p, s.Stock("item0"))
	}
	if total, ok := s.Sell("item0", 2); !ok || total != 50 {
		t.Fatalf("sell: %d %v", total, ok)
	}
	if _, ok := s.Sell("item0", 1); ok {
		t.Fatalf("sold from empty stock")
	}
	s.Step()
	if s.Stock("item0") != 0 {
		t.Fatalf("restocked too early")
	}
	s.Step()
	if s.Stock("item0") != 1 {
		t.Fatalf("restock: got %d want 1", s.Stock("item0"))
	}
}

func TestResourceNode_GatherFrequency(t *testing.T) {
	n := &ResourceNode{Resource: "item0", GatherFrequency: 3}
	got := 0
	for i := 0; i < 9; i++ {
		if n.Gather() {
			got++
		}
	}
	if got != 3 {
		t.Fatalf("gathered %d want 3", got)
	}
}

func TestChargingStation_Blackout(t *testing.T) {
	c := &ChargingStation{Rate: 50}
	c.InitiateBlackout(3)
	for i := 0; i < 2; i++ {
		c.DecrementBlackout()
		if c.Working() {
			t.Fatalf("working after %d decrements", i+1)
		}
	}
	if c.DecrementBlackout() != 0 || !c.Working() {
		t.Fatalf("should work again after 3 decrements")
	}
}
