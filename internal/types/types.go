package types

import "encoding/json"

// Event types carried in ChatEvent.Type.
const (
	EventChatMessage  = "chatMessage"
	EventChatResponse = "chatResponse"
	EventError        = "error"
	EventPing         = "ping"
	EventPong         = "pong"
)

// ChatEvent is the JSON frame exchanged over the websocket transport.
// Client to server: type "chatMessage" with Message set. Server to client:
// type "chatResponse" with Text, or type "error" with Error.
type ChatEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateFlowRequest is the upload body for the flow control endpoint. Flow
// may be a JSON object or a JSON-encoded string containing the document.
type CreateFlowRequest struct {
	Flow json.RawMessage `json:"flow"`
}

type CreateFlowResponse struct {
	FlowID int64 `json:"flowId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
