package websocket

import (
	"encoding/json"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Message is the envelope for every frame in either direction.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest selects the event kinds a client wants. An empty
// list selects both kinds.
type SubscribeRequest struct {
	Kinds []types.EventKind `json:"kinds"`
}

// ErrorMessage is the payload of an error frame.
type ErrorMessage struct {
	Error string `json:"error"`
}

// SuccessMessage is the payload of a success frame.
type SuccessMessage struct {
	Message string `json:"message"`
}
