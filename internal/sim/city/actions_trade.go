package city

import (
	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/world"
)

// buy <item> [amount]
func handleBuy(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	item, amount, ok := itemAndAmount(a)
	if !ok {
		return protocol.ResultWrongParam
	}
	f, _ := x.facilityHere(e)
	shop, ok := f.(*world.Shop)
	if !ok {
		return protocol.ResultLocation
	}
	vol, known := x.w.Catalog().Volume(item)
	price, offered := shop.Price(item)
	if !known || !offered {
		return protocol.ResultUnknownItem
	}
	if shop.Stock(item) < amount {
		return protocol.ResultItemAmount
	}
	if !x.fits(e, vol*amount) {
		return protocol.ResultCapacity
	}
	team, ok := x.w.Team(e.Team)
	if !ok || team.Money < int64(price*amount) {
		return protocol.ResultFailed
	}
	cost, ok := shop.Sell(item, amount)
	if !ok {
		return protocol.ResultItemAmount
	}
	team.Money -= int64(cost)
	e.Inventory.Add(item, amount)
	return protocol.ResultSuccessful
}

// give <agent> <item> [amount]
func handleGive(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	if len(a.Params) < 2 || len(a.Params) > 3 {
		return protocol.ResultWrongParam
	}
	other, ok := x.w.Entity(a.Params[0])
	if !ok || other == e {
		return protocol.ResultUnknownAgent
	}
	item, amount, ok := itemAndAmount(world.Action{Params: a.Params[1:]})
	if !ok {
		return protocol.ResultWrongParam
	}
	if !x.w.Map().Near(e.Location, other.Location) {
		return protocol.ResultLocation
	}
	vol, known := x.w.Catalog().Volume(item)
	if !known {
		return protocol.ResultUnknownItem
	}
	if e.Inventory.Count(item) < amount {
		return protocol.ResultItemAmount
	}
	if !x.fits(other, vol*amount) {
		return protocol.ResultCapacity
	}
	e.Inventory.Remove(item, amount)
	other.Inventory.Add(item, amount)
	return protocol.ResultSuccessful
}

func (x *DefaultExecutor) storageHere(e *world.Entity) (*world.Storage, bool) {
	f, _ := x.facilityHere(e)
	st, ok := f.(*world.Storage)
	return st, ok
}

// store <item> [amount]
func handleStore(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	item, amount, ok := itemAndAmount(a)
	if !ok {
		return protocol.ResultWrongParam
	}
	st, ok := x.storageHere(e)
	if !ok {
		return protocol.ResultLocation
	}
	vol, known := x.w.Catalog().Volume(item)
	if !known {
		return protocol.ResultUnknownItem
	}
	if e.Inventory.Count(item) < amount {
		return protocol.ResultItemAmount
	}
	if !st.Store(item, vol, amount, e.Team) {
		return protocol.ResultCapacity
	}
	e.Inventory.Remove(item, amount)
	return protocol.ResultSuccessful
}

// retrieve <item> [amount]
func handleRetrieve(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	return x.retrieve(e, a, false)
}

// retrieve_delivered <item> [amount]
func handleRetrieveDelivered(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	return x.retrieve(e, a, true)
}

func (x *DefaultExecutor) retrieve(e *world.Entity, a world.Action, delivered bool) string {
	item, amount, ok := itemAndAmount(a)
	if !ok {
		return protocol.ResultWrongParam
	}
	st, ok := x.storageHere(e)
	if !ok {
		return protocol.ResultLocation
	}
	vol, known := x.w.Catalog().Volume(item)
	if !known {
		return protocol.ResultUnknownItem
	}
	have := st.Stored(item, e.Team)
	if delivered {
		have = st.Delivered(item, e.Team)
	}
	if have < amount {
		return protocol.ResultItemAmount
	}
	if !x.fits(e, vol*amount) {
		return protocol.ResultCapacity
	}
	if delivered {
		ok = st.RetrieveDelivered(item, amount, e.Team)
	} else {
		ok = st.Retrieve(item, amount, e.Team)
	}
	if !ok {
		return protocol.ResultItemAmount
	}
	e.Inventory.Add(item, amount)
	return protocol.ResultSuccessful
}

// dump <item> [amount]
func handleDump(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	item, amount, ok := itemAndAmount(a)
	if !ok {
		return protocol.ResultWrongParam
	}
	f, _ := x.facilityHere(e)
	if _, ok := f.(*world.Dump); !ok {
		return protocol.ResultLocation
	}
	if !x.w.Catalog().Known(item) {
		return protocol.ResultUnknownItem
	}
	if !e.Inventory.Remove(item, amount) {
		return protocol.ResultItemAmount
	}
	return protocol.ResultSuccessful
}

// gather works a resource node; every GatherFrequency calls yield one unit.
func handleGather(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	if len(a.Params) != 0 {
		return protocol.ResultWrongParam
	}
	f, _ := x.facilityHere(e)
	node, ok := f.(*world.ResourceNode)
	if !ok {
		return protocol.ResultLocation
	}
	vol, _ := x.w.Catalog().Volume(node.Resource)
	if !x.fits(e, vol) {
		return protocol.ResultCapacity
	}
	if node.Gather() {
		e.Inventory.Add(node.Resource, 1)
	}
	return protocol.ResultSuccessful
}
