package gateway

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ControlMessage is an inbound frame from a dashboard session.
type ControlMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// AckFrame confirms a processed control message.
type AckFrame struct {
	Type    string   `json:"type"` // "ack"
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// ErrorFrame reports a rejected control message to that one session. The
// connection stays open.
type ErrorFrame struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
