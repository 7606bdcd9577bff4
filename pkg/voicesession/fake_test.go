package voicesession

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/haivivi/lifeline/pkg/capture"
	"github.com/haivivi/lifeline/pkg/conversation"
	openairealtime "github.com/haivivi/lifeline/pkg/openai-realtime"
)

type fakeChannel struct {
	mu        sync.Mutex
	state     openairealtime.ChannelState
	sent      [][]byte
	sendErr   error
	closed    bool
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	onError   func(error)
}

func (c *fakeChannel) Label() string { return openairealtime.DataChannelLabel }

func (c *fakeChannel) State() openairealtime.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.state != openairealtime.ChannelOpen {
		return openairealtime.ErrChannelNotOpen
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeChannel) OnOpen(fn func())          { c.onOpen = fn }
func (c *fakeChannel) OnMessage(fn func([]byte)) { c.onMessage = fn }
func (c *fakeChannel) OnClose(fn func())         { c.onClose = fn }
func (c *fakeChannel) OnError(fn func(error))    { c.onError = fn }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.state = openairealtime.ChannelClosed
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	c.state = openairealtime.ChannelOpen
	c.mu.Unlock()
	c.onOpen()
}

func (c *fakeChannel) deliver(frames ...string) {
	for _, f := range frames {
		c.onMessage([]byte(f))
	}
}

// frames returns the sent frames decoded as generic objects.
func (c *fakeChannel) frames(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.sent))
	for i, data := range c.sent {
		if err := json.Unmarshal(data, &out[i]); err != nil {
			t.Fatalf("sent frame %d: %v", i, err)
		}
	}
	return out
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakePeer struct {
	mu        sync.Mutex
	tracks    []webrtc.TrackLocal
	channel   *fakeChannel
	answer    string
	closed    bool
	onState   func(openairealtime.PeerState)
	offerErr  error
	answerErr error
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeer) CreateChannel(label string) (openairealtime.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("peer closed")
	}
	p.channel = &fakeChannel{}
	return p.channel, nil
}

func (p *fakePeer) CreateOffer(ctx context.Context) (string, error) {
	if p.offerErr != nil {
		return "", p.offerErr
	}
	return "offer-sdp", nil
}

func (p *fakePeer) SetAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.answerErr != nil {
		return p.answerErr
	}
	if p.closed {
		return errors.New("peer closed")
	}
	p.answer = sdp
	return nil
}

func (p *fakePeer) OnStateChange(fn func(openairealtime.PeerState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

// setState reports a connectivity change as the transport would.
func (p *fakePeer) setState(ps openairealtime.PeerState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(ps)
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(openairealtime.PeerClosed)
	}
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) answered() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answer
}

// fakePeers hands out fakePeers and remembers them.
type fakePeers struct {
	mu      sync.Mutex
	peers   []*fakePeer
	err     error
	prepare func(*fakePeer)
}

func (f *fakePeers) NewPeer() (openairealtime.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{}
	if f.prepare != nil {
		f.prepare(p)
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeers) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

func (f *fakePeers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

type fakeSignaler struct {
	mu     sync.Mutex
	offers []openairealtime.Offer
	err    error
}

func (f *fakeSignaler) Exchange(ctx context.Context, offer openairealtime.Offer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, offer)
	if f.err != nil {
		return "", f.err
	}
	return "answer-sdp", nil
}

type fakeCapture struct {
	mu      sync.Mutex
	stopped bool
	level   float64
}

func (c *fakeCapture) Tracks() []webrtc.TrackLocal { return nil }

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *fakeCapture) Level() float64 { return c.level }

func (c *fakeCapture) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// fakeSource returns the same capture on every Open.
type fakeSource struct {
	capture *fakeCapture
	err     error
}

func (f *fakeSource) Open(ctx context.Context) (capture.Capture, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.capture, nil
}

// fakePersistence records what the session hands it.
type fakePersistence struct {
	mu      sync.Mutex
	saved   map[string][]conversation.Entry
	records int
}

func (p *fakePersistence) Load(ctx context.Context, id string) ([]conversation.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[id], nil
}

func (p *fakePersistence) Record(id string, entries []conversation.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		p.saved = map[string][]conversation.Entry{}
	}
	p.saved[id] = entries
	p.records++
}

func (p *fakePersistence) get(id string) []conversation.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[id]
}

// harness wires a Session to fakes.
type harness struct {
	s        *Session
	peers    *fakePeers
	signaler *fakeSignaler
	source   *fakeSource
	capture  *fakeCapture
}

func sequentialIDs() conversation.Option {
	n := 0
	return conversation.WithIDGenerator(func() string {
		n++
		return "m" + strconv.Itoa(n)
	})
}

func fixedClock() conversation.Option {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return conversation.WithClock(func() time.Time { return ts })
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		peers:    &fakePeers{},
		signaler: &fakeSignaler{},
		capture:  &fakeCapture{level: 0.5},
	}
	h.source = &fakeSource{capture: h.capture}
	base := []Option{
		WithTokenFetcher(openairealtime.TokenFetcherFunc(func(ctx context.Context, voice string) (string, error) {
			return "tok-" + voice, nil
		})),
		WithSignaler(h.signaler),
		WithPeerFactory(h.peers),
		WithSource(h.source),
		WithTranscriptOptions(sequentialIDs(), fixedClock()),
	}
	h.s = New(cfg, append(base, opts...)...)
	t.Cleanup(func() { h.s.Close() })
	return h
}

// start runs Start and opens the control channel.
func (h *harness) start(t *testing.T) *fakeChannel {
	t.Helper()
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch := h.peers.last().channel
	ch.open()
	if st := h.s.State(); st.Phase != PhaseActive {
		t.Fatalf("phase after open = %s", st.Phase)
	}
	return ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
