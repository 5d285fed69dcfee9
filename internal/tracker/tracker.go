// Package tracker folds per-frame recognitions into sightings: intervals during
// which an identity stayed on screen, with short gaps bridged.
package tracker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
)

// Options controls interval aggregation.
type Options struct {
	// GracePeriod is the longest gap that still continues a sighting.
	GracePeriod time.Duration
	// MinDuration drops sightings shorter than this (blips).
	MinDuration time.Duration
}

type activeTrack struct {
	identity string
	start    time.Time
	last     time.Time
	count    int
	best     float64
}

// Tracker is not safe for concurrent use.
type Tracker struct {
	opts   Options
	active map[string]*activeTrack
}

func New(opt Options) *Tracker {
	if opt.GracePeriod <= 0 {
		opt.GracePeriod = time.Nanosecond
	}
	return &Tracker{opts: opt, active: make(map[string]*activeTrack)}
}

// Observe records the accepted faces of one frame taken at ts and returns the
// sightings that closed because their identity has been absent for longer
// than the grace period.
func (t *Tracker) Observe(ts time.Time, faces []types.Recognition) []types.Sighting {
	for _, f := range faces {
		if !f.Known() {
			continue
		}
		key := strings.ToLower(f.Name)
		tr, ok := t.active[key]
		if !ok {
			t.active[key] = &activeTrack{identity: f.Name, start: ts, last: ts, count: 1, best: f.Distance}
			continue
		}
		if ts.After(tr.last) {
			tr.last = ts
		}
		tr.count++
		if f.Distance < tr.best {
			tr.best = f.Distance
		}
	}
	return t.expire(ts)
}

// Tick closes stale sightings without new observations, for when frames stop arriving.
func (t *Tracker) Tick(now time.Time) []types.Sighting {
	return t.expire(now)
}

// Flush closes every open sighting.
func (t *Tracker) Flush() []types.Sighting {
	var closed []types.Sighting
	for key, tr := range t.active {
		delete(t.active, key)
		if s, ok := t.close(tr); ok {
			closed = append(closed, s)
		}
	}
	sortSightings(closed)
	return closed
}

// Active is the number of open sightings.
func (t *Tracker) Active() int {
	return len(t.active)
}

func (t *Tracker) expire(now time.Time) []types.Sighting {
	var closed []types.Sighting
	for key, tr := range t.active {
		if now.Sub(tr.last) <= t.opts.GracePeriod {
			continue
		}
		delete(t.active, key)
		if s, ok := t.close(tr); ok {
			closed = append(closed, s)
		}
	}
	sortSightings(closed)
	return closed
}

func (t *Tracker) close(tr *activeTrack) (types.Sighting, bool) {
	// Filter short tracks (blips)
	if tr.last.Sub(tr.start) < t.opts.MinDuration {
		return types.Sighting{}, false
	}
	return types.Sighting{
		Identity:     tr.identity,
		Start:        tr.start,
		End:          tr.last,
		FrameCount:   tr.count,
		BestDistance: tr.best,
	}, true
}

func sortSightings(s []types.Sighting) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Start.Equal(s[j].Start) {
			return s[i].Identity < s[j].Identity
		}
		return s[i].Start.Before(s[j].Start)
	})
}

// FmtDuration renders d as HH:MM:SS.
func FmtDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
