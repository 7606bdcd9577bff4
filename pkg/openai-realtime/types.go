package openairealtime

import "encoding/json"

// Models supported by the realtime endpoint.
const (
	// ModelGPT4oRealtimePreview is the GPT-4o realtime preview model.
	ModelGPT4oRealtimePreview = "gpt-4o-realtime-preview"
	// ModelGPT4oMiniRealtimePreview is the GPT-4o mini realtime preview model.
	ModelGPT4oMiniRealtimePreview = "gpt-4o-mini-realtime-preview"

	// ModelGPT4oTranscribe is the default input transcription model.
	ModelGPT4oTranscribe = "gpt-4o-transcribe"
)

// Voice options for audio output.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceBallad  = "ballad"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// Modality types.
const (
	ModalityText  = "text"
	ModalityAudio = "audio"
)

// DataChannelLabel is the label of the ordered control channel.
const DataChannelLabel = "response"

// SessionConfig is the "session" object of a session.update frame.
type SessionConfig struct {
	// Modalities specifies the output modalities.
	Modalities []string `json:"modalities,omitzero"`

	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitzero"`

	// Voice is the voice ID for audio output.
	Voice string `json:"voice,omitzero"`

	// Tools defines the functions the model may call.
	Tools []Tool `json:"tools,omitzero"`

	// InputAudioTranscription enables transcription of user audio.
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	Model    string `json:"model"`
	Language string `json:"language,omitzero"`
}

// Tool is a function the model may call.
type Tool struct {
	// Type is always "function".
	Type string `json:"type"`

	Name        string `json:"name"`
	Description string `json:"description,omitzero"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters json.RawMessage `json:"parameters,omitzero"`
}

// ContentPart is one piece of a message item's content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitzero"`
}

// ConversationItem is the "item" object of a conversation.item.create frame.
type ConversationItem struct {
	Type string `json:"type"`

	// message items
	Role    string        `json:"role,omitzero"`
	Content []ContentPart `json:"content,omitzero"`

	// function_call_output items
	CallID string `json:"call_id,omitzero"`
	Output string `json:"output,omitzero"`
}
