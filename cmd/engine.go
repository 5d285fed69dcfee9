package cmd

import (
	"bufio"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for image inputs
	_ "image/png"
	"os"
	"time"

	"github.com/andresmejia3/vigil/internal/config"
	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/imaging"
	"github.com/andresmejia3/vigil/internal/pipeline"
	"github.com/andresmejia3/vigil/internal/recognizer"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/vision"
)

// engine bundles the recognition core every command builds on.
type engine struct {
	gallery  *gallery.Store
	slot     *recognizer.Slot
	trainer  *recognizer.Trainer
	detector pipeline.Detector
	cascade  *vision.Cascade
}

func newEngine(cfg *config.Config) (*engine, error) {
	g, err := gallery.Open(cfg.GalleryDir)
	if err != nil {
		return nil, err
	}

	e := &engine{gallery: g, slot: recognizer.NewSlot(cfg.Threshold)}

	cascade, err := vision.LoadCascade(cfg.CascadePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Face detection disabled: %v\n", err)
		e.detector = pipeline.Guard(nil, err)
	} else {
		e.cascade = cascade
		e.detector = pipeline.Guard(cascade, nil)
	}

	e.trainer = recognizer.NewTrainer(g, vision.TrainLBPH, e.slot, cfg.Threshold)
	return e, nil
}

// warmUp runs the startup retrain. A failure leaves the recognizer not ready
// but is not fatal.
func (e *engine) warmUp(ctx context.Context) recognizer.Stats {
	stats, err := e.trainer.Retrain(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Recognizer not trained: %v\n", err)
		return stats
	}
	if stats.Ready {
		fmt.Fprintf(os.Stderr, "🧠 Recognizer ready: %d identities from %d samples", stats.Identities, stats.Samples)
		if stats.Skipped > 0 {
			fmt.Fprintf(os.Stderr, " (%d unreadable skipped)", stats.Skipped)
		}
		fmt.Fprintln(os.Stderr)
	} else {
		fmt.Fprintf(os.Stderr, "🧠 Gallery %s is empty, every face will show as unknown until someone enrolls\n", e.gallery.Dir())
	}
	return stats
}

func (e *engine) Close() {
	e.slot.Close()
	if e.cascade != nil {
		e.cascade.Close()
	}
}

// loadFrame decodes an image file into a frame.
func loadFrame(path string) (*types.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &types.Frame{Seq: 1, Timestamp: time.Now(), Image: imaging.ToRGBA(img)}, nil
}
