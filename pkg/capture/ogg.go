package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

// maxPageBytes is the page size treated as full level.
const maxPageBytes = 160

// OggFile is a Source that streams an Ogg/Opus file in real time, as if it
// were spoken into a microphone.
type OggFile struct {
	Path string

	// Loop restarts the file at EOF instead of going silent.
	Loop bool
}

// Open implements Source. A missing or unreadable file fails here, before
// any network activity.
func (o OggFile) Open(ctx context.Context) (Capture, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, err
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read ogg header %s: %w", o.Path, err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"lifeline-file",
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	c := &oggCapture{
		src:    o,
		file:   f,
		reader: reader,
		track:  track,
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

type oggCapture struct {
	src    OggFile
	file   *os.File
	reader *oggreader.OggReader
	track  *webrtc.TrackLocalStaticSample

	level atomic.Uint64 // math.Float64bits

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (c *oggCapture) run() {
	defer c.wg.Done()
	defer c.file.Close()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		page, header, err := c.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			c.setLevel(0)
			if !c.src.Loop {
				return
			}
			if err := c.rewind(); err != nil {
				slog.Warn("capture: rewind failed", "path", c.src.Path, "error", err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			slog.Warn("capture: read page failed", "path", c.src.Path, "error", err)
			return
		}

		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration((samples / 48000) * float64(time.Second))

		c.setLevel(math.Min(1, float64(len(page))/maxPageBytes))
		if err := c.track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			slog.Debug("capture: write sample", "error", err)
		}
	}
}

func (c *oggCapture) rewind() error {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(c.file)
	if err != nil {
		return err
	}
	c.reader = reader
	return nil
}

func (c *oggCapture) setLevel(v float64) {
	c.level.Store(math.Float64bits(v))
}

// Level is a rough activity level derived from the Opus page size. Opus
// spends more bytes on louder, busier audio.
func (c *oggCapture) Level() float64 {
	return math.Float64frombits(c.level.Load())
}

func (c *oggCapture) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{c.track}
}

func (c *oggCapture) Stop() error {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
	return nil
}
