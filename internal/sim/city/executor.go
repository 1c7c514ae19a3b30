package city

import (
	"log/slog"
	"strconv"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/world"
)

// Executor applies submitted actions. Execute is called once per agent per
// step in the order chosen by the simulation and must leave the world
// unchanged for actions it cannot apply, recording a failure instead.
type Executor interface {
	PreProcess(step int)
	Execute(agent string, actions map[string]world.Action, step int)
	PostProcess(step int)
}

// Action names understood by the default executor.
const (
	ActionGoto              = "goto"
	ActionContinue          = "continue"
	ActionNoAction          = "noAction"
	ActionSkip              = "skip"
	ActionAbort             = "abort"
	ActionCharge            = "charge"
	ActionRecharge          = "recharge"
	ActionBuy               = "buy"
	ActionGive              = "give"
	ActionStore             = "store"
	ActionRetrieve          = "retrieve"
	ActionRetrieveDelivered = "retrieve_delivered"
	ActionDump              = "dump"
	ActionAssemble          = "assemble"
	ActionAssistAssemble    = "assist_assemble"
	ActionDeliverJob        = "deliver_job"
	ActionBidForJob         = "bid_for_job"
	ActionPostJob           = "post_job"
	ActionGather            = "gather"
)

// MoveCost is the battery spent per movement step.
const MoveCost = 10

type actionHandler func(x *DefaultExecutor, e *world.Entity, a world.Action, actions map[string]world.Action, step int) string

var actionDispatch = map[string]actionHandler{
	ActionGoto:              handleGoto,
	ActionContinue:          handleContinue,
	ActionNoAction:          handleNoAction,
	ActionSkip:              handleSkip,
	ActionAbort:             handleAbort,
	ActionCharge:            handleCharge,
	ActionRecharge:          handleRecharge,
	ActionBuy:               handleBuy,
	ActionGive:              handleGive,
	ActionStore:             handleStore,
	ActionRetrieve:          handleRetrieve,
	ActionRetrieveDelivered: handleRetrieveDelivered,
	ActionDump:              handleDump,
	ActionAssemble:          handleAssemble,
	ActionAssistAssemble:    handleAssistAssemble,
	ActionDeliverJob:        handleDeliverJob,
	ActionBidForJob:         handleBidForJob,
	ActionPostJob:           handlePostJob,
	ActionGather:            handleGather,
}

type DefaultExecutor struct {
	w   *world.World
	log *slog.Logger

	// per step
	assistants map[string][]string
	assembled  map[string]bool
}

func NewExecutor(w *world.World, log *slog.Logger) *DefaultExecutor {
	return &DefaultExecutor{w: w, log: logging.OrNoop(log)}
}

func (x *DefaultExecutor) PreProcess(int) {
	x.assistants = map[string][]string{}
	x.assembled = map[string]bool{}
}

func (x *DefaultExecutor) Execute(agent string, actions map[string]world.Action, step int) {
	e, ok := x.w.Entity(agent)
	if !ok {
		return
	}
	a, ok := actions[agent]
	if !ok || a.Type == "" {
		a = world.NoAction
	}
	result := protocol.ResultUnknownAction
	if h := actionDispatch[a.Type]; h != nil {
		result = h(x, e, a, actions, step)
	}
	e.LastAction = a
	e.LastResult = result
}

// PostProcess settles assist_assemble results now that every assembler
// has acted.
func (x *DefaultExecutor) PostProcess(int) {
	for assembler, helpers := range x.assistants {
		for _, name := range helpers {
			e, ok := x.w.Entity(name)
			if !ok {
				continue
			}
			if x.assembled[assembler] {
				e.LastResult = protocol.ResultSuccessful
			} else {
				e.LastResult = protocol.ResultCounterpart
			}
		}
	}
}

// paramInt parses a positive integer parameter.
func paramInt(a world.Action, i int) (int, bool) {
	if i >= len(a.Params) {
		return 0, false
	}
	n, err := strconv.Atoi(a.Params[i])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func param(a world.Action, i int) (string, bool) {
	if i >= len(a.Params) || a.Params[i] == "" {
		return "", false
	}
	return a.Params[i], true
}

// itemAndAmount reads the common [item, amount] parameter pair; amount
// defaults to 1 when missing.
func itemAndAmount(a world.Action) (string, int, bool) {
	item, ok := param(a, 0)
	if !ok || len(a.Params) > 2 {
		return "", 0, false
	}
	if len(a.Params) == 1 {
		return item, 1, true
	}
	n, ok := paramInt(a, 1)
	return item, n, ok
}

func (x *DefaultExecutor) facilityHere(e *world.Entity) (world.Facility, bool) {
	return x.w.FacilityAt(e.Location)
}

// fits reports whether the entity can carry extra more volume.
func (x *DefaultExecutor) fits(e *world.Entity, extra int) bool {
	r := x.w.RoleOf(e)
	if r == nil {
		return false
	}
	return e.Load(x.w.Catalog())+extra <= r.MaxLoad
}
