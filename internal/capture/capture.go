// Package capture owns the video source: opening a device, running the read
// loop and handing every frame to a handler on the loop's goroutine.
package capture

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/types"
)

// ErrClosed is returned by reads after the device has been released.
var ErrClosed = errors.New("capture device closed")

// Target identifies one device/backend combination.
type Target struct {
	Index   int
	Backend string
	Width   int
	Height  int
}

func (t Target) String() string {
	return fmt.Sprintf("device %d (%s)", t.Index, t.Backend)
}

// Device is an opened video source. Read returns io.EOF when the source is
// exhausted. Close is called exactly once and never concurrently with Read.
type Device interface {
	Read() (*image.RGBA, error)
	Close() error
}

// Interrupter is implemented by devices whose blocked Read can be cut short.
// Interrupt may run concurrently with Read, and after Close.
type Interrupter interface {
	Interrupt()
}

// Opener opens a single target.
type Opener func(t Target) (Device, error)

// Options lists the combinations Open tries, in order.
type Options struct {
	Indices  []int
	Backends []string
	Width    int
	Height   int
}

// Open tries every index with every backend and returns a session on the first
// device that opens. It fails with types.ErrCaptureUnavailable only after all
// combinations were tried.
func Open(open Opener, opt Options) (*Session, error) {
	log := logger.Named("capture")
	var lastErr error
	tried := 0

	for _, idx := range opt.Indices {
		for _, backend := range opt.Backends {
			t := Target{Index: idx, Backend: backend, Width: opt.Width, Height: opt.Height}
			tried++
			dev, err := open(t)
			if err != nil {
				lastErr = err
				log.Debug().Err(err).Stringer("target", t).Msg("capture open failed")
				continue
			}
			log.Info().Stringer("target", t).Msg("capture device opened")
			return NewSession(dev, t), nil
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%w: no device indices or backends configured", types.ErrCaptureUnavailable)
	}
	return nil, fmt.Errorf("%w: tried %d combinations, last error: %v", types.ErrCaptureUnavailable, tried, lastErr)
}

// Handler consumes one frame. It runs on the capture goroutine.
type Handler func(f types.Frame)

// Session runs the read loop for one opened device.
type Session struct {
	target Target
	dev    Device

	mu        sync.Mutex
	reading   bool
	closed    bool
	released  bool
	closeOnce sync.Once
	closeErr  error

	handler atomic.Pointer[Handler]
	latest  atomic.Pointer[types.Frame]
	seq     atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}

	// RetryDelay is the pause after a failed read before trying again.
	RetryDelay time.Duration
}

func NewSession(dev Device, t Target) *Session {
	return &Session{
		target:     t,
		dev:        dev,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		RetryDelay: 20 * time.Millisecond,
	}
}

func (s *Session) Target() Target {
	return s.target
}

// Start launches the read loop. Frames are handed to h synchronously, so a slow
// handler slows capture down rather than queueing frames. Only the first call
// has any effect.
func (s *Session) Start(h Handler) {
	s.startOnce.Do(func() {
		if h != nil {
			s.handler.Store(&h)
		}
		go s.loop()
	})
}

// Stop detaches the handler, ends the loop and releases the device. It waits
// for neither a running handler call nor a pending read: a device busy in Read
// is interrupted if it can be, and released by the loop once Read returns.
// Safe to call more than once and before Start.
func (s *Session) Stop() error {
	s.handler.Store(nil)
	s.stopOnce.Do(func() { close(s.stop) })
	return s.release()
}

// Done is closed when the read loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Latest returns the most recently captured frame, or nil before the first one.
func (s *Session) Latest() *types.Frame {
	return s.latest.Load()
}

func (s *Session) loop() {
	defer close(s.done)
	log := logger.Named("capture")
	failures := 0

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		img, err := s.read()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			if errors.Is(err, io.EOF) {
				log.Info().Stringer("target", s.target).Msg("capture source exhausted")
				return
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				log.Warn().Err(err).Int("failures", failures).Msg("frame read failed")
			}
			select {
			case <-s.stop:
				return
			case <-time.After(s.RetryDelay):
			}
			continue
		}
		failures = 0

		if img == nil || img.Bounds().Empty() {
			continue
		}
		frame := types.Frame{Seq: s.seq.Add(1), Timestamp: time.Now(), Image: img}
		s.latest.Store(&frame)
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(f types.Frame) {
	h := s.handler.Load()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Named("capture").Error().Interface("panic", r).Uint64("seq", f.Seq).Msg("frame handler panicked")
		}
	}()
	(*h)(f)
}

func (s *Session) read() (*image.RGBA, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.reading = true
	s.mu.Unlock()

	img, err := s.dev.Read()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = false
	if s.closed {
		s.closeLocked()
		return nil, ErrClosed
	}
	return img, err
}

func (s *Session) release() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		busy := s.reading
		if !busy {
			s.closeLocked()
		}
		s.mu.Unlock()

		if i, ok := s.dev.(Interrupter); ok && busy {
			i.Interrupt()
		}
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// closeLocked closes the device once. s.mu must be held.
func (s *Session) closeLocked() {
	if s.released {
		return
	}
	s.released = true
	s.closeErr = s.dev.Close()
}
