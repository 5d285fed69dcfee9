package display

import (
	"context"
	"sync"

	"github.com/andresmejia3/vigil/internal/types"
)

// Mailbox is a single-slot frame buffer. Publish overwrites whatever is there
// and never blocks; any number of readers wait for a version newer than the
// one they last saw.
type Mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	frame   types.DisplayFrame
	version uint64
	closed  bool

	delivered uint64 // highest version handed to a reader
	dropped   uint64 // versions overwritten before anyone read them
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish implements pipeline.Display.
func (m *Mailbox) Publish(f types.DisplayFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.version > 0 && m.delivered < m.version {
		m.dropped++
	}
	m.frame = f
	m.version++
	m.cond.Broadcast()
}

// Latest returns the newest frame and its version; ok is false before the first publish.
func (m *Mailbox) Latest() (f types.DisplayFrame, version uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version == 0 {
		return f, 0, false
	}
	m.delivered = m.version
	return m.frame, m.version, true
}

// Wait blocks until a frame newer than after is available, the mailbox is
// closed or ctx is done. ok is false in the latter two cases.
func (m *Mailbox) Wait(ctx context.Context, after uint64) (f types.DisplayFrame, version uint64, ok bool) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for m.version <= after && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.closed || ctx.Err() != nil {
		return f, m.version, false
	}
	m.delivered = m.version
	return m.frame, m.version, true
}

// Stats reports how many frames were published and how many were overwritten unread.
func (m *Mailbox) Stats() (published, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, m.dropped
}

// Close wakes every waiter. Later publishes are ignored.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}
