package city

import (
	"strconv"

	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/route"
	"cityrun.ai/internal/sim/world"
)

// goto <facility> | goto <lat> <lon> | goto (continue current route)
func handleGoto(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	var dest route.Location
	switch len(a.Params) {
	case 0:
		if e.Route.Len() == 0 {
			return protocol.ResultWrongParam
		}
		return x.move(e)
	case 1:
		f, ok := x.w.Facility(a.Params[0])
		if !ok {
			return protocol.ResultUnknownFacility
		}
		dest = f.Location()
	case 2:
		lat, err1 := strconv.ParseFloat(a.Params[0], 64)
		lon, err2 := strconv.ParseFloat(a.Params[1], 64)
		if err1 != nil || err2 != nil {
			return protocol.ResultWrongParam
		}
		dest = route.Location{Lat: lat, Lon: lon}
	default:
		return protocol.ResultWrongParam
	}

	if dest.Key() == e.Location.Key() {
		e.ClearRoute()
		return protocol.ResultSuccessful
	}
	r, ok := x.w.Map().Route(e.Location, dest)
	if !ok {
		return protocol.ResultNoRoute
	}
	e.Route = r
	return x.move(e)
}

// move advances the entity along its route by its role speed.
func (x *DefaultExecutor) move(e *world.Entity) string {
	if e.Route.Len() == 0 {
		e.ClearRoute()
		return protocol.ResultSuccessful
	}
	if e.Battery < MoveCost {
		return protocol.ResultFailed
	}
	speed := 1
	if r := x.w.RoleOf(e); r != nil && r.Speed > 0 {
		speed = r.Speed
	}
	loc, ok := e.Route.Advance(speed)
	if !ok {
		return protocol.ResultFailed
	}
	e.Location = loc
	e.Battery -= MoveCost
	if e.Route.Len() == 0 {
		e.ClearRoute()
	}
	return protocol.ResultSuccessful
}

func handleContinue(x *DefaultExecutor, e *world.Entity, _ world.Action, _ map[string]world.Action, _ int) string {
	if e.Route.Len() == 0 {
		return protocol.ResultSuccessful
	}
	return x.move(e)
}

func handleNoAction(*DefaultExecutor, *world.Entity, world.Action, map[string]world.Action, int) string {
	return protocol.ResultNoAction
}

func handleSkip(*DefaultExecutor, *world.Entity, world.Action, map[string]world.Action, int) string {
	return protocol.ResultSuccessful
}

func handleAbort(_ *DefaultExecutor, e *world.Entity, _ world.Action, _ map[string]world.Action, _ int) string {
	e.ClearRoute()
	return protocol.ResultSuccessful
}

func handleCharge(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	if len(a.Params) != 0 {
		return protocol.ResultWrongParam
	}
	f, ok := x.facilityHere(e)
	cs, isStation := f.(*world.ChargingStation)
	if !ok || !isStation {
		return protocol.ResultLocation
	}
	if !cs.Working() {
		return protocol.ResultFacilityState
	}
	r := x.w.RoleOf(e)
	if r == nil {
		return protocol.ResultFailed
	}
	e.Battery = min(r.MaxBattery, e.Battery+cs.Rate)
	return protocol.ResultSuccessful
}

// recharge tops the battery up by one percent of its capacity anywhere.
func handleRecharge(x *DefaultExecutor, e *world.Entity, a world.Action, _ map[string]world.Action, _ int) string {
	if len(a.Params) != 0 {
		return protocol.ResultWrongParam
	}
	r := x.w.RoleOf(e)
	if r == nil {
		return protocol.ResultFailed
	}
	if e.Battery >= r.MaxBattery {
		return protocol.ResultUseless
	}
	e.Battery = min(r.MaxBattery, e.Battery+max(1, r.MaxBattery/100))
	return protocol.ResultSuccessful
}
