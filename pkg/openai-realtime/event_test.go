package openairealtime

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeKnownTypes(t *testing.T) {
	tests := []struct {
		frame string
		check func(t *testing.T, ev Event)
	}{
		{`{"type":"input_audio_buffer.speech_started","audio_start_ms":120}`, func(t *testing.T, ev Event) {
			e, ok := ev.(*SpeechStarted)
			if !ok || e.AudioStartMs != 120 {
				t.Fatalf("got %#v", ev)
			}
		}},
		{`{"type":"input_audio_buffer.speech_stopped"}`, func(t *testing.T, ev Event) {
			if _, ok := ev.(*SpeechStopped); !ok {
				t.Fatalf("got %T", ev)
			}
		}},
		{`{"type":"input_audio_buffer.committed","item_id":"it1"}`, func(t *testing.T, ev Event) {
			e, ok := ev.(*BufferCommitted)
			if !ok || e.ItemID != "it1" {
				t.Fatalf("got %#v", ev)
			}
		}},
		{`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello there"}`, func(t *testing.T, ev Event) {
			e, ok := ev.(*TranscriptionCompleted)
			if !ok || e.Transcript != "hello there" {
				t.Fatalf("got %#v", ev)
			}
		}},
		{`{"type":"response.audio_transcript.delta","delta":"Hi"}`, func(t *testing.T, ev Event) {
			e, ok := ev.(*TranscriptDelta)
			if !ok || e.Delta != "Hi" {
				t.Fatalf("got %#v", ev)
			}
		}},
		{`{"type":"response.audio_transcript.done"}`, func(t *testing.T, ev Event) {
			if _, ok := ev.(*TranscriptDone); !ok {
				t.Fatalf("got %T", ev)
			}
		}},
		{`{"type":"response.function_call_arguments.done","name":"getTime","call_id":"c1","arguments":"{}"}`, func(t *testing.T, ev Event) {
			e, ok := ev.(*FunctionCallArgumentsDone)
			if !ok || e.Name != "getTime" || e.CallID != "c1" || e.Arguments != "{}" {
				t.Fatalf("got %#v", ev)
			}
		}},
		{`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, func(t *testing.T, ev Event) {
			e, ok := ev.(*ErrorEvent)
			if !ok || e.Error.Message != "bad" {
				t.Fatalf("got %#v", ev)
			}
		}},
	}
	for _, tt := range tests {
		ev, err := Decode([]byte(tt.frame))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tt.frame, err)
		}
		if string(ev.Raw()) != tt.frame {
			t.Errorf("Raw() = %s, want %s", ev.Raw(), tt.frame)
		}
		tt.check(t, ev)
	}
}

func TestDecodePartialTranscriptionAliases(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		text    string
		hasText bool
	}{
		{"transcript", `{"type":"conversation.item.input_audio_transcription","transcript":"he"}`, "he", true},
		{"text", `{"type":"conversation.item.input_audio_transcription","text":"hel"}`, "hel", true},
		{"prefers transcript", `{"type":"conversation.item.input_audio_transcription","text":"a","transcript":"b"}`, "b", true},
		{"empty transcript wins", `{"type":"conversation.item.input_audio_transcription","text":"a","transcript":""}`, "", true},
		{"neither", `{"type":"conversation.item.input_audio_transcription"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatal(err)
			}
			p, ok := ev.(*TranscriptionPartial)
			if !ok {
				t.Fatalf("got %T", ev)
			}
			if p.Text != tt.text || p.HasText != tt.hasText {
				t.Fatalf("Text=%q HasText=%v, want %q %v", p.Text, p.HasText, tt.text, tt.hasText)
			}
		})
	}
}

func TestDecodeCompletedTranscriptionAliases(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"transcript", `{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello"}`, "hello"},
		{"text", `{"type":"conversation.item.input_audio_transcription.completed","text":"hello"}`, "hello"},
		{"prefers transcript", `{"type":"conversation.item.input_audio_transcription.completed","text":"a","transcript":"b"}`, "b"},
		{"neither", `{"type":"conversation.item.input_audio_transcription.completed","item_id":"it1"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatal(err)
			}
			c, ok := ev.(*TranscriptionCompleted)
			if !ok {
				t.Fatalf("got %T", ev)
			}
			if c.Transcript != tt.want {
				t.Fatalf("Transcript = %q, want %q", c.Transcript, tt.want)
			}
			if string(c.Raw()) != tt.frame {
				t.Fatalf("Raw() = %s", c.Raw())
			}
		})
	}
}

func TestDecodeUnhandled(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"rate_limits.updated","rate_limits":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	u, ok := ev.(*Unhandled)
	if !ok {
		t.Fatalf("got %T", ev)
	}
	if u.Type() != "rate_limits.updated" {
		t.Fatalf("Type() = %q", u.Type())
	}
}

func TestDecodeErrors(t *testing.T) {
	frames := []string{
		`not json`,
		`{"event_id":"x"}`,
		`{"type":""}`,
		`[1,2]`,
		`{"type":"response.function_call_arguments.done","call_id":"c1","arguments":"{}"}`,
		`{"type":"response.function_call_arguments.done","name":"f","arguments":"{}"}`,
		`{"type":"response.audio_transcript.delta","delta":5}`,
	}
	for _, f := range frames {
		_, err := Decode([]byte(f))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("Decode(%s) error = %v, want *DecodeError", f, err)
		}
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(NewSessionUpdate(SessionConfig{
		Modalities: []string{ModalityText, ModalityAudio},
		Tools: []Tool{{
			Type:       "function",
			Name:       "getCurrentTime",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
		InputAudioTranscription: &TranscriptionConfig{Model: ModelGPT4oTranscribe},
	}))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
		Session struct {
			Modalities []string `json:"modalities"`
			Tools      []struct {
				Name string `json:"name"`
			} `json:"tools"`
			InputAudioTranscription struct {
				Model string `json:"model"`
			} `json:"input_audio_transcription"`
		} `json:"session"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "session.update" || got.EventID == "" {
		t.Fatalf("header = %q %q", got.Type, got.EventID)
	}
	if len(got.Session.Modalities) != 2 || len(got.Session.Tools) != 1 || got.Session.Tools[0].Name != "getCurrentTime" {
		t.Fatalf("session = %+v", got.Session)
	}
	if got.Session.InputAudioTranscription.Model != "gpt-4o-transcribe" {
		t.Fatalf("transcription model = %q", got.Session.InputAudioTranscription.Model)
	}
}

func TestEncodeItems(t *testing.T) {
	tests := []struct {
		frame Frame
		want  map[string]any
	}{
		{NewUserMessage("hi"), map[string]any{
			"type": "conversation.item.create",
			"item": map[string]any{
				"type":    "message",
				"role":    "user",
				"content": []any{map[string]any{"type": "input_text", "text": "hi"}},
			},
		}},
		{NewFunctionCallOutput("c1", `{"ok":true}`), map[string]any{
			"type": "conversation.item.create",
			"item": map[string]any{
				"type":    "function_call_output",
				"call_id": "c1",
				"output":  `{"ok":true}`,
			},
		}},
		{NewResponseCreate(), map[string]any{"type": "response.create"}},
	}
	for _, tt := range tests {
		data, err := Encode(tt.frame)
		if err != nil {
			t.Fatal(err)
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if id, _ := got["event_id"].(string); len(id) != len("evt_")+12 {
			t.Errorf("event_id = %v", got["event_id"])
		}
		delete(got, "event_id")
		gotJSON, _ := json.Marshal(got)
		wantJSON, _ := json.Marshal(tt.want)
		if string(gotJSON) != string(wantJSON) {
			t.Errorf("Encode = %s, want %s", gotJSON, wantJSON)
		}
	}
}

func TestEncodeKeepsEventID(t *testing.T) {
	f := NewResponseCreate()
	f.EventID = "evt_fixed"
	data, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"event_id":"evt_fixed","type":"response.create"}` {
		t.Fatalf("Encode = %s", data)
	}
}
