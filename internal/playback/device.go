package playback

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/antoniostano/airis/internal/audio"
)

// DeviceStream is an open audio output. Write pushes one frame of PCM data;
// Close releases the device. A stream must tolerate Close racing a Write.
type DeviceStream interface {
	Write(p []byte) (int, error)
	Close() error
}

// Device is the audio output resource. Exactly one stream may be open at a
// time; the controller enforces that.
type Device interface {
	Open(ctx context.Context, format audio.Format) (DeviceStream, error)
}

// DiscardDevice paces writes in real time and drops the audio. It stands in
// for a hardware sink on headless hosts so playback timing, interruption,
// and avatar signaling all behave as they would with a real device.
type DiscardDevice struct {
	mu   sync.Mutex
	open bool
}

func NewDiscardDevice() *DiscardDevice { return &DiscardDevice{} }

func (d *DiscardDevice) Open(_ context.Context, format audio.Format) (DeviceStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, ErrDeviceBusy
	}
	d.open = true
	bps := format.BytesPerSecond()
	if bps <= 0 {
		bps = audio.DefaultFormat.BytesPerSecond()
	}
	return &discardStream{device: d, bytesPerSecond: bps}, nil
}

type discardStream struct {
	device         *DiscardDevice
	bytesPerSecond int
	closeOnce      sync.Once
}

func (s *discardStream) Write(p []byte) (int, error) {
	time.Sleep(time.Duration(len(p)) * time.Second / time.Duration(s.bytesPerSecond))
	return len(p), nil
}

func (s *discardStream) Close() error {
	s.closeOnce.Do(func() {
		s.device.mu.Lock()
		s.device.open = false
		s.device.mu.Unlock()
	})
	return nil
}

// WriterDevice adapts any io.Writer (a pipe to an external player, a file)
// into a Device. No pacing; the sink applies its own backpressure.
type WriterDevice struct {
	mu   sync.Mutex
	w    io.Writer
	open bool
}

func NewWriterDevice(w io.Writer) *WriterDevice { return &WriterDevice{w: w} }

func (d *WriterDevice) Open(_ context.Context, _ audio.Format) (DeviceStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, ErrDeviceBusy
	}
	d.open = true
	return &writerStream{device: d}, nil
}

type writerStream struct {
	device    *WriterDevice
	closeOnce sync.Once
}

func (s *writerStream) Write(p []byte) (int, error) {
	return s.device.w.Write(p)
}

func (s *writerStream) Close() error {
	s.closeOnce.Do(func() {
		s.device.mu.Lock()
		s.device.open = false
		s.device.mu.Unlock()
	})
	return nil
}
