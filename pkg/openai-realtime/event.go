package openairealtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Client event types (sent from client to server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
)

// Server event types (sent from server to client).
const (
	EventTypeError = "error"

	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"
	EventTypeInputAudioBufferCommitted     = "input_audio_buffer.committed"

	// EventTypeInputAudioTranscription carries a partial transcription of
	// the user's speech. Older servers put the text under "text", newer ones
	// under "transcript".
	EventTypeInputAudioTranscription          = "conversation.item.input_audio_transcription"
	EventTypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"

	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"

	EventTypeResponseFunctionCallArgumentsDone = "response.function_call_arguments.done"
)

// Event is a decoded server frame. The concrete type is one of the pointer
// types in this file; unknown discriminants decode to *Unhandled.
type Event interface {
	// Type returns the wire discriminant.
	Type() string

	// Raw returns the frame exactly as received.
	Raw() json.RawMessage
}

// Header holds the fields common to every server frame.
type Header struct {
	EventType string `json:"type"`
	EventID   string `json:"event_id,omitzero"`

	raw json.RawMessage
}

func (h *Header) Type() string         { return h.EventType }
func (h *Header) Raw() json.RawMessage { return h.raw }

// SpeechStarted reports that server VAD detected the user speaking.
type SpeechStarted struct {
	Header
	AudioStartMs int    `json:"audio_start_ms,omitzero"`
	ItemID       string `json:"item_id,omitzero"`
}

// SpeechStopped reports the end of user speech.
type SpeechStopped struct {
	Header
	AudioEndMs int    `json:"audio_end_ms,omitzero"`
	ItemID     string `json:"item_id,omitzero"`
}

// BufferCommitted reports that the input audio buffer became a user item.
type BufferCommitted struct {
	Header
	PreviousItemID string `json:"previous_item_id,omitzero"`
	ItemID         string `json:"item_id,omitzero"`
}

// TranscriptionPartial is an in-progress transcription of user speech.
type TranscriptionPartial struct {
	Header
	ItemID string `json:"item_id,omitzero"`

	// Text is the fragment, taken from "transcript" when present and from
	// "text" otherwise. HasText is false when neither field was sent.
	Text    string `json:"-"`
	HasText bool   `json:"-"`
}

// TranscriptionCompleted is the definitive transcription of user speech.
type TranscriptionCompleted struct {
	Header
	ItemID       string `json:"item_id,omitzero"`
	ContentIndex int    `json:"content_index,omitzero"`

	// Transcript is taken from "transcript" when present and from "text"
	// otherwise.
	Transcript string `json:"transcript"`
}

// TranscriptDelta is an incremental fragment of the assistant's spoken reply.
type TranscriptDelta struct {
	Header
	ResponseID string `json:"response_id,omitzero"`
	ItemID     string `json:"item_id,omitzero"`
	Delta      string `json:"delta"`
}

// TranscriptDone marks the assistant's spoken reply transcript complete.
type TranscriptDone struct {
	Header
	ResponseID string `json:"response_id,omitzero"`
	ItemID     string `json:"item_id,omitzero"`
	Transcript string `json:"transcript,omitzero"`
}

// FunctionCallArgumentsDone asks the client to run a function.
type FunctionCallArgumentsDone struct {
	Header
	ResponseID string `json:"response_id,omitzero"`
	ItemID     string `json:"item_id,omitzero"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`

	// Arguments is a JSON-encoded object.
	Arguments string `json:"arguments"`
}

// ErrorEvent is a protocol-level error reported by the server.
type ErrorEvent struct {
	Header
	Error EventError `json:"error"`
}

// Unhandled is any frame whose discriminant this package does not know.
type Unhandled struct {
	Header
}

// Decode parses one control-channel frame. Unknown discriminants decode to
// *Unhandled. Malformed JSON, a missing "type", or a known type missing
// required fields returns a *DecodeError.
func Decode(frame []byte) (Event, error) {
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		s := string(frame)
		if len(s) > 1000 {
			s = s[:1000] + "..."
		}
		slog.Debug("realtime frame received", "len", len(frame), "content", s)
	}

	var h Header
	if err := json.Unmarshal(frame, &h); err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}
	if h.EventType == "" {
		return nil, &DecodeError{Frame: frame, Reason: "missing type"}
	}
	raw := json.RawMessage(append([]byte(nil), frame...))

	var ev Event
	switch h.EventType {
	case EventTypeInputAudioBufferSpeechStarted:
		ev = &SpeechStarted{}
	case EventTypeInputAudioBufferSpeechStopped:
		ev = &SpeechStopped{}
	case EventTypeInputAudioBufferCommitted:
		ev = &BufferCommitted{}
	case EventTypeInputAudioTranscription:
		return decodePartial(frame, raw)
	case EventTypeInputAudioTranscriptionCompleted:
		return decodeCompleted(frame, raw)
	case EventTypeResponseAudioTranscriptDelta:
		ev = &TranscriptDelta{}
	case EventTypeResponseAudioTranscriptDone:
		ev = &TranscriptDone{}
	case EventTypeResponseFunctionCallArgumentsDone:
		fc := &FunctionCallArgumentsDone{}
		if err := json.Unmarshal(frame, fc); err != nil {
			return nil, &DecodeError{Type: h.EventType, Frame: frame, Err: err}
		}
		if fc.Name == "" || fc.CallID == "" {
			return nil, &DecodeError{Type: h.EventType, Frame: frame, Reason: "missing name or call_id"}
		}
		fc.raw = raw
		return fc, nil
	case EventTypeError:
		ev = &ErrorEvent{}
	default:
		return &Unhandled{Header: Header{EventType: h.EventType, EventID: h.EventID, raw: raw}}, nil
	}

	if err := json.Unmarshal(frame, ev); err != nil {
		return nil, &DecodeError{Type: h.EventType, Frame: frame, Err: err}
	}
	setRaw(ev, raw)
	return ev, nil
}

// transcriptFields reads user transcription text, which the server sends
// as "transcript" or "text".
type transcriptFields struct {
	Transcript *string `json:"transcript"`
	Text       *string `json:"text"`
}

func (f transcriptFields) text() (string, bool) {
	switch {
	case f.Transcript != nil:
		return *f.Transcript, true
	case f.Text != nil:
		return *f.Text, true
	}
	return "", false
}

func decodePartial(frame []byte, raw json.RawMessage) (Event, error) {
	var aux struct {
		Header
		ItemID string `json:"item_id"`
		transcriptFields
	}
	if err := json.Unmarshal(frame, &aux); err != nil {
		return nil, &DecodeError{Type: EventTypeInputAudioTranscription, Frame: frame, Err: err}
	}
	ev := &TranscriptionPartial{
		Header: Header{EventType: aux.EventType, EventID: aux.EventID, raw: raw},
		ItemID: aux.ItemID,
	}
	ev.Text, ev.HasText = aux.text()
	return ev, nil
}

func decodeCompleted(frame []byte, raw json.RawMessage) (Event, error) {
	var aux struct {
		Header
		ItemID       string `json:"item_id"`
		ContentIndex int    `json:"content_index"`
		transcriptFields
	}
	if err := json.Unmarshal(frame, &aux); err != nil {
		return nil, &DecodeError{Type: EventTypeInputAudioTranscriptionCompleted, Frame: frame, Err: err}
	}
	ev := &TranscriptionCompleted{
		Header:       Header{EventType: aux.EventType, EventID: aux.EventID, raw: raw},
		ItemID:       aux.ItemID,
		ContentIndex: aux.ContentIndex,
	}
	ev.Transcript, _ = aux.text()
	return ev, nil
}

func setRaw(ev Event, raw json.RawMessage) {
	switch e := ev.(type) {
	case *SpeechStarted:
		e.raw = raw
	case *SpeechStopped:
		e.raw = raw
	case *BufferCommitted:
		e.raw = raw
	case *TranscriptDelta:
		e.raw = raw
	case *TranscriptDone:
		e.raw = raw
	case *ErrorEvent:
		e.raw = raw
	}
}
