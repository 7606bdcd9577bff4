package openairealtime

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// ChannelState is the ready state of a control channel.
type ChannelState int

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	}
	return "unknown"
}

// PeerState is the connectivity state of a peer transport.
type PeerState int

const (
	PeerNew PeerState = iota
	PeerConnecting
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerNew:
		return "new"
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	case PeerFailed:
		return "failed"
	case PeerClosed:
		return "closed"
	}
	return "unknown"
}

// Channel is an ordered, reliable control channel carrying JSON frames.
//
// Callbacks are delivered from the transport's goroutines; the channel
// delivers messages one at a time in arrival order.
type Channel interface {
	Label() string
	State() ChannelState
	Send(frame []byte) error
	OnOpen(func())
	OnMessage(func(frame []byte))
	OnClose(func())
	OnError(func(error))
	Close() error
}

// Peer is a media transport negotiated through an SDP offer/answer.
type Peer interface {
	// AddTrack attaches a local media track.
	AddTrack(track webrtc.TrackLocal) error

	// CreateChannel creates the control channel. It must be called before
	// CreateOffer.
	CreateChannel(label string) (Channel, error)

	// CreateOffer sets and returns the local description, with candidates
	// gathered. It blocks until gathering completes or ctx is done.
	CreateOffer(ctx context.Context) (string, error)

	// SetAnswer applies the remote description.
	SetAnswer(sdp string) error

	// OnStateChange registers a connectivity callback.
	OnStateChange(func(PeerState))

	Close() error
}

// PeerFactory creates Peers.
type PeerFactory interface {
	NewPeer() (Peer, error)
}

// PeerFactoryFunc adapts a function to PeerFactory.
type PeerFactoryFunc func() (Peer, error)

func (f PeerFactoryFunc) NewPeer() (Peer, error) { return f() }
