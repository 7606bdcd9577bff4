package openairealtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// Frame is an outbound client event.
type Frame interface {
	frameType() string
}

// SessionUpdate configures the remote session.
type SessionUpdate struct {
	EventID string        `json:"event_id,omitzero"`
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// ItemCreate adds an item to the remote conversation.
type ItemCreate struct {
	EventID string           `json:"event_id,omitzero"`
	Type    string           `json:"type"`
	Item    ConversationItem `json:"item"`
}

// ResponseCreate asks the model to produce a response.
type ResponseCreate struct {
	EventID string `json:"event_id,omitzero"`
	Type    string `json:"type"`
}

func (*SessionUpdate) frameType() string  { return EventTypeSessionUpdate }
func (*ItemCreate) frameType() string     { return EventTypeConversationItemCreate }
func (*ResponseCreate) frameType() string { return EventTypeResponseCreate }

// NewSessionUpdate returns a session.update frame.
func NewSessionUpdate(cfg SessionConfig) *SessionUpdate {
	return &SessionUpdate{Session: cfg}
}

// NewUserMessage returns a conversation.item.create frame carrying a user
// text message.
func NewUserMessage(text string) *ItemCreate {
	return &ItemCreate{Item: ConversationItem{
		Type:    "message",
		Role:    "user",
		Content: []ContentPart{{Type: "input_text", Text: text}},
	}}
}

// NewFunctionCallOutput returns a conversation.item.create frame carrying
// the JSON-encoded output of a function call.
func NewFunctionCallOutput(callID, output string) *ItemCreate {
	return &ItemCreate{Item: ConversationItem{
		Type:   "function_call_output",
		CallID: callID,
		Output: output,
	}}
}

// NewResponseCreate returns a response.create frame.
func NewResponseCreate() *ResponseCreate {
	return &ResponseCreate{}
}

// Encode serializes f, filling in the type discriminant and a fresh event
// id when it is empty.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case *SessionUpdate:
		v.Type = v.frameType()
		if v.EventID == "" {
			v.EventID = generateEventID()
		}
	case *ItemCreate:
		v.Type = v.frameType()
		if v.EventID == "" {
			v.EventID = generateEventID()
		}
	case *ResponseCreate:
		v.Type = v.frameType()
		if v.EventID == "" {
			v.EventID = generateEventID()
		}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		s := string(data)
		if len(s) > 500 {
			s = s[:500] + "..."
		}
		slog.Debug("realtime frame sent", "type", f.frameType(), "content", s)
	}
	return data, nil
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}
