package recognizer

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/identity"
	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/types"
)

// Source is the part of the gallery a retrain reads from.
type Source interface {
	List() ([]gallery.Entry, error)
	Load(e gallery.Entry) (*image.Gray, error)
}

// Stats describes one build.
type Stats struct {
	Entries    int // entries listed
	Samples    int // entries that loaded and were trained on
	Skipped    int
	Identities int
	Ready      bool
}

// Trainer rebuilds the model from the gallery. Builds are serialized.
type Trainer struct {
	mu        sync.Mutex
	source    Source
	train     TrainFunc
	slot      *Slot
	threshold float64

	// Progress, when set, is called after every entry is processed.
	Progress func(done, total int)
}

func NewTrainer(src Source, train TrainFunc, slot *Slot, threshold float64) *Trainer {
	return &Trainer{source: src, train: train, slot: slot, threshold: threshold}
}

// Retrain builds a new model and installs it. On failure the previously
// installed model stays in place and the error wraps types.ErrTraining.
func (t *Trainer) Retrain(ctx context.Context) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, stats, err := t.build(ctx)
	if err != nil {
		return stats, err
	}
	t.slot.Install(m)
	return stats, nil
}

// Build produces a model without installing it. The caller owns the result
// and must release it with Discard.
func (t *Trainer) Build(ctx context.Context) (*Model, Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.build(ctx)
}

// Discard releases a model returned by Build.
func Discard(m *Model) error {
	return m.close()
}

func (t *Trainer) build(ctx context.Context) (*Model, Stats, error) {
	log := logger.Named("recognizer")
	var stats Stats

	entries, err := t.source.List()
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %w", types.ErrTraining, err)
	}
	stats.Entries = len(entries)

	names := identity.NewBuilder()
	samples := make([]*image.Gray, 0, len(entries))
	labels := make([]int, 0, len(entries))

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, stats, fmt.Errorf("%w: %w", types.ErrTraining, err)
		}

		// Labels follow gallery order even when every sample of an identity is unreadable.
		label := names.Add(e.Identity)
		img, err := t.source.Load(e)
		if err != nil {
			stats.Skipped++
			log.Warn().Err(err).Str("path", e.Path).Msg("skipping unreadable sample")
		} else {
			samples = append(samples, img)
			labels = append(labels, label)
		}
		if t.Progress != nil {
			t.Progress(i+1, len(entries))
		}
	}

	reg := names.Build()
	stats.Samples = len(samples)
	stats.Identities = reg.Len()

	if len(samples) == 0 {
		log.Info().Int("skipped", stats.Skipped).Msg("gallery has no usable samples, recognizer not ready")
		return NotReady(t.threshold), stats, nil
	}

	c, err := t.train(samples, labels)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %w", types.ErrTraining, err)
	}
	if c == nil {
		return nil, stats, fmt.Errorf("%w: trainer returned no classifier", types.ErrTraining)
	}

	stats.Ready = true
	log.Info().
		Int("samples", stats.Samples).
		Int("identities", stats.Identities).
		Int("skipped", stats.Skipped).
		Msg("recognizer trained")
	return NewModel(reg, c, t.threshold), stats, nil
}
