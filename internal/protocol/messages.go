package protocol

// auth-request (agent -> server)
type AuthRequest struct {
	User     string `json:"user"`
	Password string `json:"pw"`
}

const (
	AuthOK   = "ok"
	AuthFail = "fail"
)

// auth-response (server -> agent)
type AuthResponse struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id,omitempty"`
}

// sim-start (server -> agent)
type SimStart struct {
	Percept InitialPercept `json:"percept"`
}

// request-action (server -> agent). The agent answers with an action
// carrying the same ID before Deadline (unix millis).
type RequestAction struct {
	ID       int64       `json:"id"`
	Deadline int64       `json:"deadline"`
	Percept  StepPercept `json:"percept"`
}

// action (agent -> server)
type ActionContent struct {
	ID     int64    `json:"id"`
	Type   string   `json:"type"`
	Params []string `json:"p"`
}

// sim-end (server -> agent)
type SimEnd struct {
	Ranking int   `json:"ranking"`
	Score   int64 `json:"score"`
}
