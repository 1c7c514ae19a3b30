package protocol

// Action result codes reported back to agents in their last action.
const (
	ResultSuccessful      = "successful"
	ResultFailed          = "failed"
	ResultLocation        = "failed_location"
	ResultUnknownItem     = "failed_unknown_item"
	ResultUnknownAgent    = "failed_unknown_agent"
	ResultUnknownJob      = "failed_unknown_job"
	ResultUnknownFacility = "failed_unknown_facility"
	ResultItemAmount      = "failed_item_amount"
	ResultCapacity        = "failed_capacity"
	ResultWrongFacility   = "failed_wrong_facility"
	ResultTools           = "failed_tools"
	ResultJobStatus       = "failed_job_status"
	ResultWrongParam      = "failed_wrong_param"
	ResultCounterpart     = "failed_counterpart"
	ResultNoRoute         = "failed_no_route"
	ResultFacilityState   = "failed_facility_state"
	ResultUseless         = "useless"
	ResultUnknownAction   = "unknown_action"
	ResultNoAction        = "no_action"
)

var knownResults = map[string]struct{}{
	ResultSuccessful:      {},
	ResultFailed:          {},
	ResultLocation:        {},
	ResultUnknownItem:     {},
	ResultUnknownAgent:    {},
	ResultUnknownJob:      {},
	ResultUnknownFacility: {},
	ResultItemAmount:      {},
	ResultCapacity:        {},
	ResultWrongFacility:   {},
	ResultTools:           {},
	ResultJobStatus:       {},
	ResultWrongParam:      {},
	ResultCounterpart:     {},
	ResultNoRoute:         {},
	ResultFacilityState:   {},
	ResultUseless:         {},
	ResultUnknownAction:   {},
	ResultNoAction:        {},
}

func IsKnownResult(code string) bool {
	_, ok := knownResults[code]
	return ok
}

// Failed reports whether a known result code is a failure of any kind.
func Failed(code string) bool {
	return code != ResultSuccessful && code != ResultNoAction && IsKnownResult(code)
}
