package protocol

import "encoding/json"

const Version = "2017.1"

// Message types.
const (
	TypeAuthRequest   = "auth-request"
	TypeAuthResponse  = "auth-response"
	TypeSimStart      = "sim-start"
	TypeRequestAction = "request-action"
	TypeAction        = "action"
	TypeSimEnd        = "sim-end"
	TypeBye           = "bye"
)

// Message is the envelope of everything on the agent socket. Content is
// decoded once the type is known.
type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

func DecodeBase(b []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(b, &m)
	return m, err
}

// Encode wraps content into an envelope of the given type.
func Encode(typ string, ts int64, content any) ([]byte, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Timestamp: ts, Content: raw})
}
