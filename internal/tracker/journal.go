package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/types"
)

// Writer persists closed sightings.
type Writer interface {
	InsertSighting(ctx context.Context, s types.Sighting) error
}

type observation struct {
	ts    time.Time
	faces []types.Recognition
}

// Journal runs a Tracker on its own goroutine. Observe never blocks the
// caller: when the queue is full the observation is dropped.
type Journal struct {
	tracker *Tracker
	writer  Writer
	queue   chan observation
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	tick    time.Duration

	mu      sync.Mutex
	summary map[string][]types.Sighting
	order   []string
}

// NewJournal starts the journal goroutine. writer may be nil, in which case
// sightings are only kept for the summary.
func NewJournal(writer Writer, opt Options) *Journal {
	tick := opt.GracePeriod
	if tick <= 0 {
		tick = time.Second
	}
	j := &Journal{
		tracker: New(opt),
		writer:  writer,
		queue:   make(chan observation, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		tick:    tick,
		summary: make(map[string][]types.Sighting),
	}
	go j.run()
	return j
}

// Observe implements pipeline.Sink.
func (j *Journal) Observe(ts time.Time, faces []types.Recognition) {
	select {
	case <-j.stop:
		return
	default:
	}
	select {
	case j.queue <- observation{ts: ts, faces: faces}:
	default:
		j.dropped.Add(1)
	}
}

// Dropped is the number of observations lost to a full queue.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Close drains the queue, closes every open sighting and waits for the writes.
func (j *Journal) Close() {
	j.once.Do(func() { close(j.stop) })
	<-j.done
}

// Summary returns the closed sightings per identity, in order of first sighting.
func (j *Journal) Summary() (order []string, byIdentity map[string][]types.Sighting) {
	j.mu.Lock()
	defer j.mu.Unlock()
	byIdentity = make(map[string][]types.Sighting, len(j.summary))
	for k, v := range j.summary {
		byIdentity[k] = append([]types.Sighting(nil), v...)
	}
	return append([]string(nil), j.order...), byIdentity
}

func (j *Journal) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.tick)
	defer ticker.Stop()

	for {
		select {
		case obs := <-j.queue:
			j.persist(j.tracker.Observe(obs.ts, obs.faces))
		case now := <-ticker.C:
			j.persist(j.tracker.Tick(now))
		case <-j.stop:
			for {
				select {
				case obs := <-j.queue:
					j.persist(j.tracker.Observe(obs.ts, obs.faces))
				default:
					j.persist(j.tracker.Flush())
					return
				}
			}
		}
	}
}

func (j *Journal) persist(closed []types.Sighting) {
	if len(closed) == 0 {
		return
	}
	log := logger.Named("journal")

	j.mu.Lock()
	for _, s := range closed {
		if _, seen := j.summary[s.Identity]; !seen {
			j.order = append(j.order, s.Identity)
		}
		j.summary[s.Identity] = append(j.summary[s.Identity], s)
	}
	j.mu.Unlock()

	for _, s := range closed {
		log.Debug().Str("identity", s.Identity).Time("start", s.Start).Time("end", s.End).Int("frames", s.FrameCount).Msg("sighting closed")
		if j.writer == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := j.writer.InsertSighting(ctx, s)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("identity", s.Identity).Msg("failed to persist sighting")
		}
	}
}
