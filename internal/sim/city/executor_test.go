package city

import (
	"sort"
	"testing"

	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/catalog"
	"cityrun.ai/internal/sim/route"
	"cityrun.ai/internal/sim/world"
)

var (
	shopLoc     = route.Location{Lat: 0.1, Lon: 0.1}
	stationLoc  = route.Location{Lat: 0.2, Lon: 0.2}
	workshopLoc = route.Location{Lat: 0.3, Lon: 0.3}
	storageLoc  = route.Location{Lat: 0.4, Lon: 0.4}
	dumpLoc     = route.Location{Lat: 0.5, Lon: 0.5}
)

func newExecWorld(t *testing.T) *world.World {
	t.Helper()
	cat := catalog.New()
	for _, r := range []*catalog.Role{
		{Name: "truck", Speed: 1, MaxLoad: 1000, MaxBattery: 100},
		{Name: "drone", Speed: 2, MaxLoad: 20, MaxBattery: 50},
	} {
		if err := cat.AddRole(r); err != nil {
			t.Fatalf("role: %v", err)
		}
	}
	if err := cat.AddTool(&catalog.Tool{Name: "tool0", Volume: 5, Value: 10, Roles: []string{"truck"}}); err != nil {
		t.Fatalf("tool: %v", err)
	}
	for _, it := range []*catalog.Item{
		{Name: "item0", Volume: 10, Value: 20},
		{Name: "item1", Volume: 5, Value: 30},
		{Name: "item2", Volume: 15, Level: 1, Parts: []catalog.ItemCount{{Item: "item0", Count: 2}}, Tools: []string{"tool0"}},
	} {
		if err := cat.AddItem(it); err != nil {
			t.Fatalf("item: %v", err)
		}
	}
	if err := cat.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	grid := route.NewGrid("test", route.Bounds{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, 0.1, 0.01)
	w := world.New(world.Config{ID: "test", Steps: 100, SeedCapital: 1000, Map: grid, Catalog: cat})
	for _, name := range []string{"A", "B"} {
		if _, err := w.AddTeam(name); err != nil {
			t.Fatalf("team: %v", err)
		}
	}
	shop := &world.Shop{Site: world.Site{ID: "shop0", Loc: shopLoc}, Restock: 1}
	shop.AddItem("item0", 5, 30)
	for _, f := range []world.Facility{
		shop,
		&world.ChargingStation{Site: world.Site{ID: "station0", Loc: stationLoc}, Rate: 30},
		&world.Workshop{Site: world.Site{ID: "workshop0", Loc: workshopLoc}},
		world.NewStorage("storage0", storageLoc, 100, w.TeamNames()),
		&world.Dump{Site: world.Site{ID: "dump0", Loc: dumpLoc}},
	} {
		if err := w.AddFacility(f); err != nil {
			t.Fatalf("facility: %v", err)
		}
	}
	for _, e := range []*world.Entity{
		{Name: "agentA1", Team: "A", Role: "truck", Battery: 100},
		{Name: "agentA2", Team: "A", Role: "truck", Battery: 100},
		{Name: "agentA3", Team: "A", Role: "drone", Battery: 50},
		{Name: "agentB1", Team: "B", Role: "truck", Battery: 100},
	} {
		if err := w.AddEntity(e); err != nil {
			t.Fatalf("entity: %v", err)
		}
	}
	return w
}

func entity(t *testing.T, w *world.World, name string) *world.Entity {
	t.Helper()
	e, ok := w.Entity(name)
	if !ok {
		t.Fatalf("no entity %s", name)
	}
	return e
}

func team(t *testing.T, w *world.World, name string) *world.Team {
	t.Helper()
	tm, ok := w.Team(name)
	if !ok {
		t.Fatalf("no team %s", name)
	}
	return tm
}

// execStep runs one executor cycle over the agents that have an action,
// in name order.
func execStep(x *DefaultExecutor, step int, actions map[string]world.Action) {
	agents := make([]string, 0, len(actions))
	for a := range actions {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	x.PreProcess(step)
	for _, a := range agents {
		x.Execute(a, actions, step)
	}
	x.PostProcess(step)
}

func act(typ string, params ...string) world.Action {
	return world.Action{Type: typ, Params: params}
}

func expectResult(t *testing.T, e *world.Entity, want string) {
	t.Helper()
	if e.LastResult != want {
		t.Fatalf("%s %s%v: got %q want %q", e.Name, e.LastAction.Type, e.LastAction.Params, e.LastResult, want)
	}
}

func TestExecute_UnknownAndMissingAction(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1, a2 := entity(t, w, "agentA1"), entity(t, w, "agentA2")
	x.PreProcess(0)
	actions := map[string]world.Action{"agentA1": act("fly")}
	x.Execute("agentA1", actions, 0)
	x.Execute("agentA2", actions, 0)
	x.PostProcess(0)
	expectResult(t, a1, protocol.ResultUnknownAction)
	expectResult(t, a2, protocol.ResultNoAction)
	if a2.LastAction.Type != ActionNoAction {
		t.Fatalf("missing action should be recorded as noAction, got %q", a2.LastAction.Type)
	}
}

func TestExecute_Goto(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1 := entity(t, w, "agentA1")
	a1.Location = shopLoc

	execStep(x, 0, map[string]world.Action{"agentA1": act(ActionGoto, "dump0")})
	expectResult(t, a1, protocol.ResultSuccessful)
	if a1.Battery != 100-MoveCost {
		t.Fatalf("battery after one move: %d", a1.Battery)
	}
	if a1.Location == shopLoc || a1.RouteLength() == 0 {
		t.Fatalf("agent should be underway: at %+v route %d", a1.Location, a1.RouteLength())
	}

	left := a1.RouteLength()
	execStep(x, 1, map[string]world.Action{"agentA1": act(ActionContinue)})
	expectResult(t, a1, protocol.ResultSuccessful)
	if a1.RouteLength() != left-1 {
		t.Fatalf("continue should consume one waypoint: %d -> %d", left, a1.RouteLength())
	}

	execStep(x, 2, map[string]world.Action{"agentA1": act(ActionAbort)})
	if a1.RouteLength() != 0 {
		t.Fatalf("abort should clear the route")
	}

	execStep(x, 3, map[string]world.Action{"agentA1": act(ActionGoto, "nowhere")})
	expectResult(t, a1, protocol.ResultUnknownFacility)
	execStep(x, 4, map[string]world.Action{"agentA1": act(ActionGoto, "5", "5")})
	expectResult(t, a1, protocol.ResultNoRoute)

	a1.Battery = MoveCost - 1
	execStep(x, 5, map[string]world.Action{"agentA1": act(ActionGoto, "dump0")})
	expectResult(t, a1, protocol.ResultFailed)
}

func TestExecute_ChargeAndRecharge(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1 := entity(t, w, "agentA1")
	a1.Location = stationLoc
	a1.Battery = 10

	execStep(x, 0, map[string]world.Action{"agentA1": act(ActionCharge)})
	expectResult(t, a1, protocol.ResultSuccessful)
	if a1.Battery != 40 {
		t.Fatalf("battery: got %d want 40", a1.Battery)
	}

	w.ChargingStations()[0].InitiateBlackout(2)
	execStep(x, 1, map[string]world.Action{"agentA1": act(ActionCharge)})
	expectResult(t, a1, protocol.ResultFacilityState)
	if a1.Battery != 40 {
		t.Fatalf("blackout must not charge, battery %d", a1.Battery)
	}

	execStep(x, 2, map[string]world.Action{"agentA1": act(ActionRecharge)})
	expectResult(t, a1, protocol.ResultSuccessful)
	if a1.Battery != 41 {
		t.Fatalf("recharge should add one percent: %d", a1.Battery)
	}

	a1.Location = shopLoc
	execStep(x, 3, map[string]world.Action{"agentA1": act(ActionCharge)})
	expectResult(t, a1, protocol.ResultLocation)

	a1.Battery = 100
	execStep(x, 4, map[string]world.Action{"agentA1": act(ActionRecharge)})
	expectResult(t, a1, protocol.ResultUseless)
}

func TestExecute_Buy(t *testing.T) {
	cases := []struct {
		name   string
		at     route.Location
		params []string
		money  int64
		want   string
	}{
		{"ok", shopLoc, []string{"item0", "2"}, 1000, protocol.ResultSuccessful},
		{"default amount", shopLoc, []string{"item0"}, 1000, protocol.ResultSuccessful},
		{"not at shop", workshopLoc, []string{"item0", "1"}, 1000, protocol.ResultLocation},
		{"not offered", shopLoc, []string{"item1", "1"}, 1000, protocol.ResultUnknownItem},
		{"out of stock", shopLoc, []string{"item0", "6"}, 1000, protocol.ResultItemAmount},
		{"bad amount", shopLoc, []string{"item0", "-1"}, 1000, protocol.ResultWrongParam},
		{"too poor", shopLoc, []string{"item0", "2"}, 59, protocol.ResultFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newExecWorld(t)
			x := NewExecutor(w, nil)
			a1 := entity(t, w, "agentA1")
			a1.Location = tc.at
			team(t, w, "A").Money = tc.money

			execStep(x, 0, map[string]world.Action{"agentA1": act(ActionBuy, tc.params...)})
			expectResult(t, a1, tc.want)
			stock := w.Shops()[0].Stock("item0")
			if tc.want != protocol.ResultSuccessful {
				if stock != 5 || !a1.Inventory.Empty() || team(t, w, "A").Money != tc.money {
					t.Fatalf("failed buy changed state: stock=%d inv=%v money=%d", stock, a1.Inventory, team(t, w, "A").Money)
				}
				return
			}
			n := a1.Inventory.Count("item0")
			if stock != 5-n || team(t, w, "A").Money != tc.money-int64(30*n) {
				t.Fatalf("bought %d: stock=%d money=%d", n, stock, team(t, w, "A").Money)
			}
		})
	}
}

func TestExecute_BuyRespectsCapacity(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	drone := entity(t, w, "agentA3")
	drone.Location = shopLoc
	execStep(x, 0, map[string]world.Action{"agentA3": act(ActionBuy, "item0", "3")})
	expectResult(t, drone, protocol.ResultCapacity)
}

func TestExecute_Give(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1, a2, a3, b1 := entity(t, w, "agentA1"), entity(t, w, "agentA2"), entity(t, w, "agentA3"), entity(t, w, "agentB1")
	a1.Location, a2.Location, a3.Location, b1.Location = shopLoc, shopLoc, shopLoc, dumpLoc
	a1.Inventory.Add("item0", 3)

	execStep(x, 0, map[string]world.Action{"agentA1": act(ActionGive, "agentA2", "item0", "2")})
	expectResult(t, a1, protocol.ResultSuccessful)
	if a1.Inventory.Count("item0") != 1 || a2.Inventory.Count("item0") != 2 {
		t.Fatalf("give: a1=%v a2=%v", a1.Inventory, a2.Inventory)
	}

	for _, tc := range []struct {
		params []string
		want   string
	}{
		{[]string{"agentB1", "item0", "1"}, protocol.ResultLocation},
		{[]string{"ghost", "item0", "1"}, protocol.ResultUnknownAgent},
		{[]string{"agentA2", "item0", "5"}, protocol.ResultItemAmount},
		{[]string{"agentA2", "nope", "1"}, protocol.ResultUnknownItem},
		{[]string{"agentA2"}, protocol.ResultWrongParam},
	} {
		execStep(x, 1, map[string]world.Action{"agentA1": act(ActionGive, tc.params...)})
		expectResult(t, a1, tc.want)
	}

	a2.Inventory.Add("item0", 1)
	execStep(x, 2, map[string]world.Action{"agentA2": act(ActionGive, "agentA3", "item0", "3")})
	expectResult(t, a2, protocol.ResultCapacity)
}

func TestExecute_StoreRetrieveDump(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1 := entity(t, w, "agentA1")
	a1.Location = storageLoc
	a1.Inventory.Add("item0", 3)
	st := w.Storages()[0]

	execStep(x, 0, map[string]world.Action{"agentA1": act(ActionStore, "item0", "2")})
	expectResult(t, a1, protocol.ResultSuccessful)
	if st.Stored("item0", "A") != 2 || st.Used() != 20 || a1.Inventory.Count("item0") != 1 {
		t.Fatalf("store: stored=%d used=%d inv=%v", st.Stored("item0", "A"), st.Used(), a1.Inventory)
	}

	execStep(x, 1, map[string]world.Action{"agentA1": act(ActionRetrieve, "item0", "3")})
	expectResult(t, a1, protocol.ResultItemAmount)
	execStep(x, 2, map[string]world.Action{"agentA1": act(ActionRetrieve, "item0", "1")})
	expectResult(t, a1, protocol.ResultSuccessful)
	if st.Stored("item0", "A") != 1 || a1.Inventory.Count("item0") != 2 {
		t.Fatalf("retrieve: stored=%d inv=%v", st.Stored("item0", "A"), a1.Inventory)
	}

	a1.Inventory.Add("item0", 20)
	execStep(x, 3, map[string]world.Action{"agentA1": act(ActionStore, "item0", "10")})
	expectResult(t, a1, protocol.ResultCapacity)

	execStep(x, 4, map[string]world.Action{"agentA1": act(ActionDump, "item0", "1")})
	expectResult(t, a1, protocol.ResultLocation)
	a1.Location = dumpLoc
	execStep(x, 5, map[string]world.Action{"agentA1": act(ActionDump, "item0", "22")})
	expectResult(t, a1, protocol.ResultSuccessful)
	if a1.Inventory.Count("item0") != 0 {
		t.Fatalf("dump should remove the items: %v", a1.Inventory)
	}
}

func TestExecute_AssembleWithAssistant(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1, a2 := entity(t, w, "agentA1"), entity(t, w, "agentA2")
	a1.Location, a2.Location = workshopLoc, workshopLoc
	a1.Inventory.Add("item0", 1)
	a1.Inventory.Add("tool0", 1)

	execStep(x, 0, map[string]world.Action{"agentA1": act(ActionAssemble, "item2")})
	expectResult(t, a1, protocol.ResultItemAmount)

	a2.Inventory.Add("item0", 1)
	execStep(x, 1, map[string]world.Action{
		"agentA1": act(ActionAssemble, "item2"),
		"agentA2": act(ActionAssistAssemble, "agentA1"),
	})
	expectResult(t, a1, protocol.ResultSuccessful)
	expectResult(t, a2, protocol.ResultSuccessful)
	if a1.Inventory.Count("item2") != 1 || a1.Inventory.Count("item0") != 0 || a2.Inventory.Count("item0") != 0 {
		t.Fatalf("assemble: a1=%v a2=%v", a1.Inventory, a2.Inventory)
	}
	if a1.Inventory.Count("tool0") != 1 {
		t.Fatalf("tools are not consumed")
	}
}

func TestExecute_AssembleFailures(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1, a2 := entity(t, w, "agentA1"), entity(t, w, "agentA2")
	a1.Location, a2.Location = workshopLoc, workshopLoc
	a1.Inventory.Add("item0", 2)

	execStep(x, 0, map[string]world.Action{"agentA1": act(ActionAssemble, "item2")})
	expectResult(t, a1, protocol.ResultTools)

	execStep(x, 1, map[string]world.Action{"agentA1": act(ActionAssemble, "item0")})
	expectResult(t, a1, protocol.ResultWrongParam)

	a1.Inventory.Add("tool0", 1)
	a1.Location = shopLoc
	execStep(x, 2, map[string]world.Action{"agentA1": act(ActionAssemble, "item2")})
	expectResult(t, a1, protocol.ResultLocation)

	// assistant whose target does not assemble
	execStep(x, 3, map[string]world.Action{
		"agentA1": act(ActionSkip),
		"agentA2": act(ActionAssistAssemble, "agentA1"),
	})
	expectResult(t, a2, protocol.ResultCounterpart)

	// target assembles but fails, so the assist fails too
	a1.Location = workshopLoc
	a1.Inventory.Remove("item0", 2)
	execStep(x, 4, map[string]world.Action{
		"agentA1": act(ActionAssemble, "item2"),
		"agentA2": act(ActionAssistAssemble, "agentA1"),
	})
	expectResult(t, a1, protocol.ResultItemAmount)
	expectResult(t, a2, protocol.ResultCounterpart)
}

func addActiveJob(t *testing.T, w *world.World, j *world.Job) *world.Job {
	t.Helper()
	if err := w.AddJob(j); err != nil {
		t.Fatalf("add job: %v", err)
	}
	w.ActivateJobs(j.Begin)
	return j
}

func TestExecute_DeliverJob(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1, a2 := entity(t, w, "agentA1"), entity(t, w, "agentA2")
	a1.Location, a2.Location = storageLoc, storageLoc
	j := addActiveJob(t, w, world.NewJob(world.JobRegular, 500, "storage0", 0, 50, world.PosterSystem, map[string]int{"item0": 2}))

	execStep(x, 1, map[string]world.Action{"agentA2": act(ActionDeliverJob, j.Name)})
	expectResult(t, a2, protocol.ResultUseless)

	a1.Inventory.Add("item0", 1)
	execStep(x, 1, map[string]world.Action{"agentA1": act(ActionDeliverJob, j.Name)})
	expectResult(t, a1, protocol.ResultSuccessful)
	if j.Status != world.JobActive || j.DeliveredBy("A").Count("item0") != 1 {
		t.Fatalf("partial delivery: status=%s delivered=%v", j.Status, j.DeliveredBy("A"))
	}

	a1.Inventory.Add("item0", 2)
	execStep(x, 2, map[string]world.Action{"agentA1": act(ActionDeliverJob, j.Name)})
	expectResult(t, a1, protocol.ResultSuccessful)
	if j.Status != world.JobCompleted || j.CompletedBy != "A" {
		t.Fatalf("job should be completed by A: %s %s", j.Status, j.CompletedBy)
	}
	if got := team(t, w, "A").Money; got != 1500 {
		t.Fatalf("reward not paid: %d", got)
	}
	if a1.Inventory.Count("item0") != 1 {
		t.Fatalf("only required items are taken: %v", a1.Inventory)
	}

	execStep(x, 3, map[string]world.Action{"agentA1": act(ActionDeliverJob, j.Name)})
	expectResult(t, a1, protocol.ResultJobStatus)
	execStep(x, 3, map[string]world.Action{"agentA1": act(ActionDeliverJob, "job99")})
	expectResult(t, a1, protocol.ResultUnknownJob)
	a1.Location = shopLoc
	execStep(x, 3, map[string]world.Action{"agentA1": act(ActionDeliverJob, j.Name)})
	expectResult(t, a1, protocol.ResultLocation)
}

func TestExecute_BidForJob(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1, b1 := entity(t, w, "agentA1"), entity(t, w, "agentB1")
	auction := addActiveJob(t, w, world.NewAuctionJob(400, "storage0", 0, 50, 3, 100, 50, map[string]int{"item0": 1}))
	regular := addActiveJob(t, w, world.NewJob(world.JobRegular, 100, "storage0", 0, 50, world.PosterSystem, map[string]int{"item0": 1}))

	execStep(x, 0, map[string]world.Action{
		"agentA1": act(ActionBidForJob, auction.Name, "300"),
		"agentB1": act(ActionBidForJob, auction.Name, "250"),
	})
	expectResult(t, a1, protocol.ResultSuccessful)
	expectResult(t, b1, protocol.ResultSuccessful)
	if auction.Auction.Lowest == nil || auction.Auction.Lowest.Team != "B" {
		t.Fatalf("lowest bid should be B's: %+v", auction.Auction.Lowest)
	}

	for _, tc := range []struct {
		params []string
		want   string
	}{
		{[]string{auction.Name, "0"}, protocol.ResultWrongParam},
		{[]string{auction.Name, "401"}, protocol.ResultWrongParam},
		{[]string{auction.Name, "x"}, protocol.ResultWrongParam},
		{[]string{regular.Name, "10"}, protocol.ResultJobStatus},
		{[]string{"auction99", "10"}, protocol.ResultUnknownJob},
	} {
		execStep(x, 1, map[string]world.Action{"agentA1": act(ActionBidForJob, tc.params...)})
		expectResult(t, a1, tc.want)
	}
}

func TestExecute_PostJobEscrowsReward(t *testing.T) {
	w := newExecWorld(t)
	x := NewExecutor(w, nil)
	a1, b1 := entity(t, w, "agentA1"), entity(t, w, "agentB1")

	execStep(x, 1, map[string]world.Action{"agentA1": act(ActionPostJob, "200", "10", "storage0", "item0", "3")})
	expectResult(t, a1, protocol.ResultSuccessful)
	if got := team(t, w, "A").Money; got != 800 {
		t.Fatalf("reward should be escrowed: money %d", got)
	}
	jobs := w.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs: %d", len(jobs))
	}
	j := jobs[0]
	if j.Kind != world.JobPosted || j.Poster != "A" || j.Begin != 2 || j.End != 10 || j.RequiredCount("item0") != 3 {
		t.Fatalf("posted job: %+v", j)
	}

	w.ActivateJobs(2)
	a1.Location, b1.Location = storageLoc, storageLoc
	a1.Inventory.Add("item0", 3)
	execStep(x, 3, map[string]world.Action{"agentA1": act(ActionDeliverJob, j.Name)})
	expectResult(t, a1, protocol.ResultJobStatus)

	for _, tc := range []struct {
		params []string
		want   string
	}{
		{[]string{"200", "2", "storage0", "item0", "3"}, protocol.ResultWrongParam},
		{[]string{"200", "10", "storage9", "item0", "3"}, protocol.ResultUnknownFacility},
		{[]string{"200", "10", "storage0", "ghost", "3"}, protocol.ResultUnknownItem},
		{[]string{"200", "10", "storage0", "item0"}, protocol.ResultWrongParam},
		{[]string{"5000", "10", "storage0", "item0", "3"}, protocol.ResultFailed},
	} {
		execStep(x, 1, map[string]world.Action{"agentA1": act(ActionPostJob, tc.params...)})
		expectResult(t, a1, tc.want)
	}
	if got := team(t, w, "A").Money; got != 800 {
		t.Fatalf("failed posts must not charge: %d", got)
	}

	w.TerminateJobs(10)
	if got := team(t, w, "A").Money; got != 1000 {
		t.Fatalf("expired posted job should refund the poster: %d", got)
	}
}

func TestExecute_Gather(t *testing.T) {
	w := newExecWorld(t)
	nodeLoc := route.Location{Lat: 0.6, Lon: 0.6}
	node := &world.ResourceNode{Site: world.Site{ID: "node0", Loc: nodeLoc}, Resource: "item1", GatherFrequency: 2}
	if err := w.AddFacility(node); err != nil {
		t.Fatalf("node: %v", err)
	}
	x := NewExecutor(w, nil)
	a1 := entity(t, w, "agentA1")
	a1.Location = nodeLoc

	execStep(x, 0, map[string]world.Action{"agentA1": act(ActionGather)})
	expectResult(t, a1, protocol.ResultSuccessful)
	if a1.Inventory.Count("item1") != 0 {
		t.Fatalf("first gather should only make progress")
	}
	execStep(x, 1, map[string]world.Action{"agentA1": act(ActionGather)})
	if a1.Inventory.Count("item1") != 1 {
		t.Fatalf("second gather should yield a resource: %v", a1.Inventory)
	}
}
