package voicesession

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haivivi/lifeline/pkg/conversation"
	openairealtime "github.com/haivivi/lifeline/pkg/openai-realtime"
	"github.com/haivivi/lifeline/pkg/tools"
)

const (
	processingText = "Processing speech..."
	speakingText   = "User is speaking..."
)

// sessionConfig builds the session.update payload from the config and the
// tools currently declared in the registry.
func (s *Session) sessionConfig() openairealtime.SessionConfig {
	cfg := openairealtime.SessionConfig{
		Modalities:   s.cfg.Modalities,
		Instructions: s.cfg.Instructions,
		Tools:        []openairealtime.Tool{},
		InputAudioTranscription: &openairealtime.TranscriptionConfig{
			Model:    s.cfg.TranscriptionModel,
			Language: s.cfg.TranscriptionLanguage,
		},
	}
	for _, d := range s.registry.Declarations() {
		params, err := json.Marshal(d.Parameters)
		if err != nil {
			slog.Warn("skip tool with bad schema", "tool", d.Name, "error", err)
			continue
		}
		cfg.Tools = append(cfg.Tools, openairealtime.Tool{
			Type:        "function",
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return cfg
}

func (s *Session) onOpen(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	slog.Info("control channel opened, sending session configuration")
	frames := []openairealtime.Frame{openairealtime.NewSessionUpdate(s.sessionConfig())}
	if s.cfg.SeedPrompt != "" {
		frames = append(frames, openairealtime.NewUserMessage(s.cfg.SeedPrompt))
	}
	if err := s.sendLocked(frames...); err != nil {
		slog.Error("send initial frames", "error", err)
		s.err = &Error{Kind: KindSend, Message: "failed to send session configuration", Err: err}
	}
	s.setPhaseLocked(PhaseActive, StatusActive)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) onChannelError(epoch uint64, err error) {
	slog.Error("control channel error", "error", err)
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.err = &Error{Kind: KindChannel, Message: "control channel error", Err: err}
	s.mu.Unlock()
	s.notify()
}

// onPeerState reports a lost connection without tearing anything down.
func (s *Session) onPeerState(epoch uint64, ps openairealtime.PeerState) {
	slog.Info("peer connection state changed", "state", ps)
	if ps != openairealtime.PeerDisconnected && ps != openairealtime.PeerFailed {
		return
	}
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	slog.Error("peer connection lost", "state", ps)
	s.err = &Error{Kind: KindConnectionLost, Message: StatusConnectionLost, Err: fmt.Errorf("peer %s", ps)}
	s.setPhaseLocked(PhaseError, StatusConnectionLost)
	s.mu.Unlock()
	s.notify()
}

// onFrame handles one inbound frame. The channel delivers frames one at a
// time, and a tool call completes before the next frame is read.
func (s *Session) onFrame(epoch uint64, frame []byte) {
	ev, err := openairealtime.Decode(frame)
	if err != nil {
		slog.Warn("drop malformed frame", "error", err)
		s.mu.Lock()
		current := epoch == s.epoch
		if current {
			s.err = &Error{Kind: KindDecode, Message: "malformed frame", Err: err}
		}
		s.mu.Unlock()
		if current {
			s.notify()
		}
		return
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	call := s.applyLocked(ev)
	s.events = append(s.events, ev)
	ctx := s.ctx
	s.mu.Unlock()
	s.notify()

	if call != nil {
		s.invoke(ctx, epoch, call)
	}
}

// applyLocked applies ev to the transcript. It returns function calls for
// the caller to run outside the lock.
func (s *Session) applyLocked(ev openairealtime.Event) *openairealtime.FunctionCallArgumentsDone {
	t := s.transcript
	changed := true
	switch ev := ev.(type) {
	case *openairealtime.SpeechStarted:
		t.BeginOrReuseEphemeralUser()
		t.UpdateEphemeralUser(conversation.Patch{Status: conversation.StatusOf(conversation.StatusSpeaking)})

	case *openairealtime.SpeechStopped:
		t.UpdateEphemeralUser(conversation.Patch{Status: conversation.StatusOf(conversation.StatusSpeaking)})

	case *openairealtime.BufferCommitted:
		t.UpdateEphemeralUser(conversation.Patch{
			Text:   conversation.Text(processingText),
			Status: conversation.StatusOf(conversation.StatusProcessing),
		})

	case *openairealtime.TranscriptionPartial:
		text := ev.Text
		if !ev.HasText {
			text = speakingText
		}
		t.UpdateEphemeralUser(conversation.Patch{
			Text:    conversation.Text(text),
			Status:  conversation.StatusOf(conversation.StatusSpeaking),
			IsFinal: conversation.Final(false),
		})

	case *openairealtime.TranscriptionCompleted:
		t.UpdateEphemeralUser(conversation.Patch{
			Text:    conversation.Text(ev.Transcript),
			Status:  conversation.StatusOf(conversation.StatusFinal),
			IsFinal: conversation.Final(true),
		})
		t.ClearEphemeralUser()

	case *openairealtime.TranscriptDelta:
		t.AppendOrExtendAssistantDelta(ev.Delta)

	case *openairealtime.TranscriptDone:
		t.FinalizeTail()

	case *openairealtime.FunctionCallArgumentsDone:
		return ev

	case *openairealtime.ErrorEvent:
		slog.Error("remote error", "error", &ev.Error)
		s.err = &Error{Kind: KindChannel, Message: "remote error", Err: &ev.Error}
		changed = false

	default:
		slog.Debug("unhandled frame", "type", ev.Type())
		changed = false
	}
	if changed {
		s.persistLocked()
	}
	return nil
}

// invoke runs a function call and answers it with a function output
// followed by a response request. Calls to unregistered functions are
// ignored unless ReportMissingTools is set. A failed handler is answered
// with an error output so the model is not left waiting.
func (s *Session) invoke(ctx context.Context, epoch uint64, call *openairealtime.FunctionCallArgumentsDone) {
	log := slog.With("tool", call.Name, "call_id", call.CallID)

	var (
		output any
		err    error
	)
	if _, ok := s.registry.Lookup(call.Name); !ok {
		log.Warn("no handler registered for function call")
		if !s.cfg.ReportMissingTools {
			return
		}
		output = map[string]any{"error": "unknown function: " + call.Name}
	} else {
		var args map[string]any
		if args, err = tools.ParseArguments(call.Arguments); err == nil {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
			output, _, err = s.registry.Invoke(ctx, call.Name, args)
			cancel()
		}
		if err != nil {
			log.Error("function call failed", "error", err)
			output = map[string]any{"error": err.Error()}
		}
	}

	data, merr := json.Marshal(output)
	if merr != nil {
		log.Error("encode function output", "error", merr)
		err = merr
		data, _ = json.Marshal(map[string]any{"error": merr.Error()})
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		log.Debug("drop function output of stopped session")
		return
	}
	if err != nil {
		s.err = &Error{Kind: KindToolInvocation, Message: "function " + call.Name + " failed", Err: err}
	}
	if serr := s.sendLocked(
		openairealtime.NewFunctionCallOutput(call.CallID, string(data)),
		openairealtime.NewResponseCreate(),
	); serr != nil {
		log.Error("send function output", "error", serr)
		s.err = &Error{Kind: KindSend, Message: "failed to send function output", Err: serr}
	}
	s.mu.Unlock()
	s.notify()
}
