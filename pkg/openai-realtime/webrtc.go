package openairealtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"
)

// PionConfig configures PionPeer.
type PionConfig struct {
	// ICEServers defaults to a public STUN server.
	ICEServers []webrtc.ICEServer

	// OnRemoteAudio receives the remote audio track. When nil the track is
	// read and discarded so the receiver does not stall.
	OnRemoteAudio func(track *webrtc.TrackRemote)
}

// PionFactory creates PionPeers.
type PionFactory struct {
	Config PionConfig
}

// NewPeer implements PeerFactory.
func (f *PionFactory) NewPeer() (Peer, error) {
	return NewPionPeer(f.Config)
}

// PionPeer implements Peer with a pion PeerConnection.
type PionPeer struct {
	pc  *webrtc.PeerConnection
	cfg PionConfig

	mu       sync.Mutex
	hasTrack bool
}

// NewPionPeer creates a peer connection.
func NewPionPeer(cfg PionConfig) (*PionPeer, error) {
	servers := cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	p := &PionPeer{pc: pc, cfg: cfg}
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		slog.Debug("received remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if cfg.OnRemoteAudio != nil {
			cfg.OnRemoteAudio(track)
			return
		}
		go drain(track)
	})
	return p, nil
}

func drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			slog.Debug("remote track read ended", "error", err)
			return
		}
	}
}

// AddTrack implements Peer.
func (p *PionPeer) AddTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	p.mu.Lock()
	p.hasTrack = true
	p.mu.Unlock()

	// RTCP must be read for interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// CreateChannel implements Peer.
func (p *PionPeer) CreateChannel(label string) (Channel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return &pionChannel{dc: dc}, nil
}

// CreateOffer implements Peer. Without a local track it adds a receive-only
// audio transceiver so the answer still carries the assistant's voice.
func (p *PionPeer) CreateOffer(ctx context.Context) (string, error) {
	p.mu.Lock()
	hasTrack := p.hasTrack
	p.mu.Unlock()
	if !hasTrack {
		_, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return "", fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.pc.LocalDescription().SDP, nil
}

// SetAnswer implements Peer.
func (p *PionPeer) SetAnswer(sdp string) error {
	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// OnStateChange implements Peer.
func (p *PionPeer) OnStateChange(fn func(PeerState)) {
	p.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Debug("ICE state", "state", state.String())
		fn(peerState(state))
	})
}

// Close implements Peer.
func (p *PionPeer) Close() error {
	return p.pc.Close()
}

func peerState(s webrtc.ICEConnectionState) PeerState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return PeerConnecting
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return PeerConnected
	case webrtc.ICEConnectionStateDisconnected:
		return PeerDisconnected
	case webrtc.ICEConnectionStateFailed:
		return PeerFailed
	case webrtc.ICEConnectionStateClosed:
		return PeerClosed
	}
	return PeerNew
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionChannel) Label() string { return c.dc.Label() }

func (c *pionChannel) State() ChannelState {
	switch c.dc.ReadyState() {
	case webrtc.DataChannelStateOpen:
		return ChannelOpen
	case webrtc.DataChannelStateClosing:
		return ChannelClosing
	case webrtc.DataChannelStateClosed:
		return ChannelClosed
	}
	return ChannelConnecting
}

func (c *pionChannel) Send(frame []byte) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return c.dc.Send(frame)
}

func (c *pionChannel) OnOpen(fn func()) { c.dc.OnOpen(fn) }

func (c *pionChannel) OnMessage(fn func([]byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *pionChannel) OnClose(fn func())      { c.dc.OnClose(fn) }
func (c *pionChannel) OnError(fn func(error)) { c.dc.OnError(fn) }
func (c *pionChannel) Close() error           { return c.dc.Close() }
