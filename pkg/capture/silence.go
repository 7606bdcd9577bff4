package capture

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

const (
	opusPayloadType = 111
	frameDuration   = 20 * time.Millisecond

	// samplesPerFrame is 20ms at the 48kHz Opus RTP clock.
	samplesPerFrame = 960
)

// opusSilence is a single 20ms CELT frame that decodes to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Silence is a Source that sends Opus silence. It is useful for text-only
// sessions and headless runs where no microphone exists.
type Silence struct{}

// Open implements Source.
func (Silence) Open(ctx context.Context) (Capture, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"lifeline-silence",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	c := &silenceCapture{
		track: track,
		done:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

type silenceCapture struct {
	track *webrtc.TrackLocalStaticRTP
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func (c *silenceCapture) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	ssrc := rand.Uint32()
	seq := uint16(rand.Uint32())
	ts := rand.Uint32()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
			},
			Payload: opusSilence,
		}
		// Writes before the track is bound are dropped by pion.
		_ = c.track.WriteRTP(packet)
		seq++
		ts += samplesPerFrame
	}
}

func (c *silenceCapture) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{c.track}
}

func (c *silenceCapture) Stop() error {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
	return nil
}
