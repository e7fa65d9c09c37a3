package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/antoniostano/airis/internal/audio"
	"github.com/antoniostano/airis/internal/observability"
)

var (
	ErrDeviceBusy = errors.New("playback: audio device busy")
)

// Request is one unit of audio output: a PCM stream plus its format and the
// text being spoken (carried along for status reporting). Tag is an opaque
// caller-side identifier echoed back through listener callbacks.
type Request struct {
	Tag    string
	Text   string
	Audio  io.Reader
	Format audio.Format
}

// StateListener observes playback transitions. Callbacks run on the playback
// goroutine and must not block.
type StateListener interface {
	SpeakingStarted(generation uint64, tag, text string)
	SpeakingStopped(generation uint64, tag string, interrupted bool)
}

type activePlayback struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// Controller owns the audio output resource. It stamps each request with the
// next generation id; only the latest generation may drive the device, and
// starting a new request cancels the previous one before the device is
// reopened. Cancellation is cooperative: the pump checks its context between
// frame writes and never terminates the device mid-write.
type Controller struct {
	device    Device
	metrics   *observability.Metrics
	logger    *log.Logger
	listeners []StateListener

	mu         sync.Mutex
	generation uint64
	active     *activePlayback
}

func NewController(device Device, metrics *observability.Metrics, logger *log.Logger, listeners ...StateListener) *Controller {
	return &Controller{
		device:    device,
		metrics:   metrics,
		logger:    logger,
		listeners: listeners,
	}
}

// Play cancels any active request, waits for the device to be released, and
// begins req under a fresh generation id. It returns once the new request is
// driving the device; the audio pump runs on its own goroutine.
func (c *Controller) Play(ctx context.Context, req Request) (uint64, error) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	prev := c.active
	c.active = nil
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
		c.metrics.PlaybackEvents.WithLabelValues("replaced").Inc()
	}

	format := req.Format
	if format.BytesPerSecond() <= 0 {
		format = audio.DefaultFormat
	}

	stream, err := c.device.Open(ctx, format)
	if errors.Is(err, ErrDeviceBusy) {
		// Contention: make sure anything we own is released, then retry once.
		c.Cancel()
		stream, err = c.device.Open(ctx, format)
	}
	if err != nil {
		// Acquisition failure leaves the controller idle, never stuck.
		c.metrics.PlaybackEvents.WithLabelValues("device_error").Inc()
		return 0, fmt.Errorf("acquire audio device: %w", err)
	}

	playCtx, cancel := context.WithCancel(ctx)
	play := &activePlayback{generation: gen, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	// A racing Play already advanced the generation; yield the device.
	if gen != c.generation {
		c.mu.Unlock()
		cancel()
		_ = stream.Close()
		return 0, context.Canceled
	}
	c.active = play
	c.mu.Unlock()

	go c.pump(playCtx, play, stream, req, format)
	return gen, nil
}

// Cancel signals the active request and waits for the device to be released.
// Safe to call when nothing is playing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active == nil {
		return
	}
	active.cancel()
	<-active.done
	c.metrics.PlaybackEvents.WithLabelValues("cancelled").Inc()
}

// Speaking reports whether a request is currently driving the device, and
// its generation id.
func (c *Controller) Speaking() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0, false
	}
	return c.active.generation, true
}

func (c *Controller) pump(ctx context.Context, play *activePlayback, stream DeviceStream, req Request, format audio.Format) {
	interrupted := false
	defer func() {
		_ = stream.Close()
		if closer, ok := req.Audio.(io.Closer); ok {
			_ = closer.Close()
		}

		c.mu.Lock()
		if c.active == play {
			c.active = nil
		}
		c.mu.Unlock()

		for _, l := range c.listeners {
			l.SpeakingStopped(play.generation, req.Tag, interrupted)
		}
		close(play.done)
	}()

	for _, l := range c.listeners {
		l.SpeakingStarted(play.generation, req.Tag, req.Text)
	}
	c.metrics.PlaybackEvents.WithLabelValues("started").Inc()

	// Frame-sized chunks (~50ms) keep the cancellation check frequent
	// without chattering the device.
	frame := format.BytesPerSecond() / 20
	if frame <= 0 {
		frame = 1600
	}
	buf := make([]byte, frame)

	for {
		if ctx.Err() != nil {
			interrupted = true
			return
		}
		n, err := req.Audio.Read(buf)
		if n > 0 {
			if ctx.Err() != nil {
				// Cancellation observed: no further frames reach the device.
				interrupted = true
				return
			}
			if _, werr := stream.Write(buf[:n]); werr != nil {
				c.metrics.PlaybackEvents.WithLabelValues("write_error").Inc()
				c.logger.Warn("audio write failed", "generation", play.generation, "err", werr)
				return
			}
		}
		if err == io.EOF {
			c.metrics.PlaybackEvents.WithLabelValues("completed").Inc()
			return
		}
		if err != nil {
			c.metrics.PlaybackEvents.WithLabelValues("read_error").Inc()
			c.logger.Warn("audio source read failed", "generation", play.generation, "err", err)
			return
		}
	}
}
