// Package voicesession runs one realtime voice conversation at a time.
//
// A Session drives the start handshake (audio source, token, peer
// negotiation), owns the transport handles, turns inbound control frames
// into transcript changes and tool calls, and publishes a State snapshot
// after every change.
//
// Start is guarded by a session epoch. Every suspension point in the
// handshake re-checks the epoch before applying its result, so a start
// superseded by Stop releases whatever it produced and never touches a
// newer session. Callbacks from transports of an old epoch are ignored.
//
// Example:
//
//	s := voicesession.New(voicesession.Config{Voice: "ash"},
//		voicesession.WithTokenFetcher(tokens),
//		voicesession.WithSource(&capture.OggFile{Path: "mic.ogg"}),
//	)
//	defer s.Close()
//	cancel := s.Subscribe(func(st voicesession.State) { render(st) })
//	defer cancel()
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	s.SendText("hello")
package voicesession

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/haivivi/lifeline/pkg/capture"
	"github.com/haivivi/lifeline/pkg/conversation"
	openairealtime "github.com/haivivi/lifeline/pkg/openai-realtime"
	"github.com/haivivi/lifeline/pkg/tools"
)

// DefaultToolTimeout bounds a single tool handler call.
const DefaultToolTimeout = 30 * time.Second

// Config is the static configuration of a Session.
type Config struct {
	// Voice is sent to the token endpoint and the realtime endpoint.
	Voice string `json:"voice,omitzero" yaml:"voice,omitempty"`

	// Model defaults to openairealtime.ModelGPT4oRealtimePreview.
	Model string `json:"model,omitzero" yaml:"model,omitempty"`

	// Instructions is the system prompt sent in the session configuration.
	Instructions string `json:"instructions,omitzero" yaml:"instructions,omitempty"`

	// Modalities defaults to text and audio.
	Modalities []string `json:"modalities,omitzero" yaml:"modalities,omitempty"`

	// TranscriptionModel defaults to openairealtime.ModelGPT4oTranscribe.
	TranscriptionModel string `json:"transcriptionModel,omitzero" yaml:"transcription_model,omitempty"`

	// TranscriptionLanguage is an optional ISO-639-1 hint.
	TranscriptionLanguage string `json:"transcriptionLanguage,omitzero" yaml:"transcription_language,omitempty"`

	// SeedPrompt is sent as a user message once the control channel opens.
	// Empty sends nothing.
	SeedPrompt string `json:"seedPrompt,omitzero" yaml:"seed_prompt,omitempty"`

	// ToolTimeout defaults to DefaultToolTimeout.
	ToolTimeout time.Duration `json:"toolTimeout,omitzero" yaml:"tool_timeout,omitempty"`

	// ReportMissingTools answers calls to unregistered functions with an
	// error output instead of ignoring them.
	ReportMissingTools bool `json:"reportMissingTools,omitzero" yaml:"report_missing_tools,omitempty"`
}

func (c *Config) setDefaults() {
	if c.Model == "" {
		c.Model = openairealtime.ModelGPT4oRealtimePreview
	}
	if len(c.Modalities) == 0 {
		c.Modalities = []string{openairealtime.ModalityText, openairealtime.ModalityAudio}
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = openairealtime.ModelGPT4oTranscribe
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
}

// Persistence loads and saves the transcript of an associated exam.
// exam.Recorder implements it.
type Persistence interface {
	// Load returns the saved transcript, or nil if there is none.
	Load(ctx context.Context, id string) ([]conversation.Entry, error)

	// Record schedules entries to be saved. It must not block on storage.
	Record(id string, entries []conversation.Entry)
}

// Option configures a Session.
type Option func(*Session)

// WithTokenFetcher sets the source of realtime credentials. Without one,
// Start fails with KindAuth.
func WithTokenFetcher(f openairealtime.TokenFetcher) Option {
	return func(s *Session) { s.tokens = f }
}

// WithSignaler sets the SDP exchange. Defaults to an HTTPSignaler on
// openairealtime.DefaultRealtimeURL.
func WithSignaler(sig openairealtime.Signaler) Option {
	return func(s *Session) { s.signaler = sig }
}

// WithPeerFactory sets the peer transport. Defaults to pion.
func WithPeerFactory(f openairealtime.PeerFactory) Option {
	return func(s *Session) { s.peers = f }
}

// WithSource sets the local audio source. Defaults to capture.Silence.
func WithSource(src capture.Source) Option {
	return func(s *Session) { s.source = src }
}

// WithRegistry shares a tool registry. Defaults to an empty one.
func WithRegistry(r *tools.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithPersistence enables loading and saving transcripts of associated
// exams.
func WithPersistence(p Persistence) Option {
	return func(s *Session) { s.persist = p }
}

// WithTranscriptOptions configures the session transcript.
func WithTranscriptOptions(opts ...conversation.Option) Option {
	return func(s *Session) { s.transcriptOpts = append(s.transcriptOpts, opts...) }
}

// Session is a realtime voice conversation. All methods are safe for
// concurrent use.
type Session struct {
	cfg            Config
	tokens         openairealtime.TokenFetcher
	signaler       openairealtime.Signaler
	peers          openairealtime.PeerFactory
	source         capture.Source
	registry       *tools.Registry
	persist        Persistence
	transcriptOpts []conversation.Option

	mu         sync.Mutex
	epoch      uint64
	phase      Phase
	status     string
	err        *Error
	transcript *conversation.Transcript
	events     []openairealtime.Event
	examID     string

	// handles of the current epoch
	capture     capture.Capture
	peer        openairealtime.Peer
	channel     openairealtime.Channel
	ctx         context.Context
	cancel      context.CancelFunc
	cancelStart context.CancelFunc

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]func(State)
	nextObs   int
}

// New creates an idle session.
func New(cfg Config, opts ...Option) *Session {
	cfg.setDefaults()
	s := &Session{
		cfg:       cfg,
		signaler:  &openairealtime.HTTPSignaler{},
		peers:     &openairealtime.PionFactory{},
		source:    capture.Silence{},
		phase:     PhaseIdle,
		observers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = tools.NewRegistry()
	}
	s.transcript = conversation.New(s.transcriptOpts...)
	return s
}

// Registry returns the session's tool registry.
func (s *Session) Registry() *tools.Registry { return s.registry }

// RegisterFunction registers a tool handler. The last registration for a
// name wins. Registrations survive Stop.
func (s *Session) RegisterFunction(name string, h tools.Handler) {
	s.registry.Register(name, h)
}

// Subscribe calls fn with a fresh State after every change. Calls are
// serialized. fn must not call back into the Session synchronously.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	st := s.State()
	s.obsMu.Lock()
	fns := make([]func(State), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Phase:      s.phase,
		Status:     s.status,
		Active:     s.phase == PhaseActive,
		Err:        s.err,
		Transcript: s.transcript.Entries(),
		Events:     len(s.events),
		ExamID:     s.examID,
	}
	if s.capture != nil {
		st.Volume = capture.Level(s.capture)
	}
	return st
}

// Events returns the raw log of decoded inbound frames of the current
// session.
func (s *Session) Events() []openairealtime.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// ExamID returns the associated exam, or "".
func (s *Session) ExamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.examID
}

// Associate binds the session to exam id and loads its saved transcript.
// An empty id detaches the session without clearing the transcript.
func (s *Session) Associate(ctx context.Context, id string) error {
	var entries []conversation.Entry
	if id != "" && s.persist != nil {
		var err error
		entries, err = s.persist.Load(ctx, id)
		if err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.examID = id
	if id != "" {
		s.transcript.Load(entries)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Toggle stops an active session and starts an inactive one.
func (s *Session) Toggle(ctx context.Context) error {
	s.mu.Lock()
	active := s.phase == PhaseActive
	s.mu.Unlock()
	if active {
		s.Stop()
		return nil
	}
	return s.Start(ctx)
}

// Start runs the handshake. It returns once the remote answer is applied;
// the session becomes active when the control channel opens. Handshake
// failures tear everything down and are returned as *Error; the State
// carries the same error and an "Error: " status.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase.starting() || s.phase == PhaseActive {
		s.mu.Unlock()
		return ErrBusy
	}
	// A soft connection loss leaves handles behind.
	release := s.detachLocked()
	epoch := s.epoch
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelStart = cancel
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.err = nil
	s.setPhaseLocked(PhaseRequestingPermission, StatusRequestingMicrophone)
	s.mu.Unlock()
	release()
	s.notify()

	slog.Info("starting voice session", "voice", s.cfg.Voice, "model", s.cfg.Model)

	cp, err := s.source.Open(hctx)
	if err != nil {
		return s.fail(epoch, KindPermission, msgMicrophoneDenied+": "+err.Error(), err)
	}
	if !s.adopt(epoch, func() { s.capture = cp }) {
		cp.Stop()
		return ErrStopped
	}
	if !s.advance(epoch, PhaseFetchingToken, StatusFetchingToken) {
		return ErrStopped
	}

	token, err := s.fetchToken(hctx)
	if err != nil {
		return s.fail(epoch, KindAuth, msgAuthFailed, err)
	}
	if !s.advance(epoch, PhaseNegotiating, StatusSettingUp) {
		return ErrStopped
	}

	if err := s.negotiate(hctx, epoch, cp, token); err != nil {
		if errors.Is(err, ErrStopped) {
			return err
		}
		return s.fail(epoch, KindNegotiation, msgConnectionFailed, err)
	}

	s.mu.Lock()
	if epoch == s.epoch {
		s.cancelStart = nil
	}
	s.mu.Unlock()
	slog.Info("voice session negotiated")
	return nil
}

func (s *Session) fetchToken(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return "", errors.New("no token fetcher configured")
	}
	return s.tokens.FetchToken(ctx, s.cfg.Voice)
}

func (s *Session) negotiate(ctx context.Context, epoch uint64, cp capture.Capture, token string) error {
	peer, err := s.peers.NewPeer()
	if err != nil {
		return err
	}
	if !s.adopt(epoch, func() { s.peer = peer }) {
		peer.Close()
		return ErrStopped
	}
	peer.OnStateChange(func(ps openairealtime.PeerState) { s.onPeerState(epoch, ps) })

	for _, track := range cp.Tracks() {
		slog.Debug("adding audio track", "id", track.ID())
		if err := peer.AddTrack(track); err != nil {
			return err
		}
	}

	ch, err := peer.CreateChannel(openairealtime.DataChannelLabel)
	if err != nil {
		return err
	}
	ch.OnOpen(func() { s.onOpen(epoch) })
	ch.OnMessage(func(frame []byte) { s.onFrame(epoch, frame) })
	ch.OnClose(func() { slog.Info("control channel closed") })
	ch.OnError(func(err error) { s.onChannelError(epoch, err) })
	if !s.adopt(epoch, func() { s.channel = ch }) {
		ch.Close()
		return ErrStopped
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return err
	}
	answer, err := s.signaler.Exchange(ctx, openairealtime.Offer{
		SDP:   offer,
		Token: token,
		Model: s.cfg.Model,
		Voice: s.cfg.Voice,
	})
	if err != nil {
		return err
	}

	// A stale answer must not reach a torn down peer. If Stop races past
	// this check, SetAnswer fails on the closed peer and fail discards it.
	if !s.adopt(epoch, func() {}) {
		return ErrStopped
	}
	return peer.SetAnswer(answer)
}

// adopt runs set under the lock if epoch is still current.
func (s *Session) adopt(epoch uint64, set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	set()
	return true
}

func (s *Session) advance(epoch uint64, phase Phase, status string) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.setPhaseLocked(phase, status)
	s.mu.Unlock()
	s.notify()
	return true
}

// fail ends a start of epoch with a fatal error. A start superseded by
// Stop returns ErrStopped and leaves the state alone.
func (s *Session) fail(epoch uint64, kind ErrorKind, msg string, cause error) error {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrStopped
	}
	slog.Error("voice session start failed", "kind", kind, "error", cause)
	release := s.detachLocked()
	e := &Error{Kind: kind, Message: msg, Err: cause}
	s.err = e
	s.setPhaseLocked(PhaseError, "Error: "+msg)
	s.mu.Unlock()
	release()
	s.notify()
	return e
}

func (s *Session) setPhaseLocked(p Phase, status string) {
	s.phase = p
	s.status = status
}

// detachLocked invalidates callbacks of the current handles and takes
// them from the session. The returned func releases them and must be
// called without holding mu, since transports may call back while closing.
// Each step tolerates absent handles.
func (s *Session) detachLocked() (release func()) {
	s.epoch++
	if s.cancelStart != nil {
		s.cancelStart()
		s.cancelStart = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	ch, peer, cp := s.channel, s.peer, s.capture
	s.channel, s.peer, s.capture = nil, nil, nil
	return func() {
		if ch != nil {
			slog.Info("closing control channel")
			if err := ch.Close(); err != nil {
				slog.Warn("close control channel", "error", err)
			}
		}
		if peer != nil {
			slog.Info("closing peer connection")
			if err := peer.Close(); err != nil {
				slog.Warn("close peer connection", "error", err)
			}
		}
		if cp != nil {
			slog.Info("stopping audio capture")
			if err := cp.Stop(); err != nil {
				slog.Warn("stop audio capture", "error", err)
			}
		}
	}
}

// Stop tears the session down from any state. The transcript, raw event
// log, and error are cleared; tool registrations and the exam association
// are kept.
func (s *Session) Stop() {
	s.mu.Lock()
	release := s.detachLocked()
	s.transcript.Reset()
	s.events = nil
	s.err = nil
	s.setPhaseLocked(PhaseStopped, StatusStopped)
	s.mu.Unlock()
	release()
	slog.Info("voice session stopped")
	s.notify()
}

// Close stops the session.
func (s *Session) Close() error {
	s.Stop()
	return nil
}

// SendText sends a typed user message and requests a response. When the
// control channel is missing or not open the message is dropped, the
// status explains why, and a KindSend error is returned.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	err := s.sendTextLocked(text)
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Session) sendTextLocked(text string) error {
	if s.channel == nil {
		s.status = StatusNoSession
		return &Error{Kind: KindSend, Message: StatusNoSession}
	}
	if st := s.channel.State(); st != openairealtime.ChannelOpen {
		slog.Warn("control channel not open", "state", st)
		s.status = StatusNotReady
		return &Error{Kind: KindSend, Message: StatusNotReady}
	}
	s.transcript.AppendUserFinal(text)
	s.persistLocked()
	if err := s.sendLocked(openairealtime.NewUserMessage(text), openairealtime.NewResponseCreate()); err != nil {
		slog.Error("send text message", "error", err)
		s.status = StatusSendFailed
		e := &Error{Kind: KindSend, Message: StatusSendFailed, Err: err}
		s.err = e
		return e
	}
	return nil
}

// sendLocked encodes and sends frames in order on the current channel.
func (s *Session) sendLocked(frames ...openairealtime.Frame) error {
	if s.channel == nil {
		return openairealtime.ErrChannelNotOpen
	}
	for _, f := range frames {
		data, err := openairealtime.Encode(f)
		if err != nil {
			return err
		}
		if err := s.channel.Send(data); err != nil {
			return err
		}
	}
	return nil
}

// persistLocked hands a non-empty transcript of an associated exam to the
// persistence layer.
func (s *Session) persistLocked() {
	if s.persist == nil || s.examID == "" || s.transcript.Len() == 0 {
		return
	}
	s.persist.Record(s.examID, s.transcript.Entries())
}
