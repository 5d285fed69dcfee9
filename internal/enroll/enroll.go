// Package enroll adds a new face sample from the current frame and retrains
// the recognizer so the identity is recognized from the next frame on.
package enroll

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/identity"
	"github.com/andresmejia3/vigil/internal/imaging"
	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/pipeline"
	"github.com/andresmejia3/vigil/internal/recognizer"
	"github.com/andresmejia3/vigil/internal/types"
)

// Saver persists one normalized sample.
type Saver interface {
	Save(identity string, sample *image.Gray) (gallery.Entry, error)
}

// Retrainer rebuilds and installs the model.
type Retrainer interface {
	Retrain(ctx context.Context) (recognizer.Stats, error)
}

// FrameSource provides the newest captured frame, or nil.
type FrameSource interface {
	Latest() *types.Frame
}

// Recorder is told about every saved sample. Failures are logged, not returned.
type Recorder interface {
	RecordEnrollment(ctx context.Context, identity, path string) error
}

// Result describes a completed enrollment.
type Result struct {
	Identity string `json:"identity"`
	Path     string `json:"path"`
	Index    int    `json:"index"`
	Labels   int    `json:"identities"`
	Ready    bool   `json:"ready"`
}

// Enroller runs enrollments one at a time.
type Enroller struct {
	mu       sync.Mutex
	saver    Saver
	detector pipeline.Detector
	trainer  Retrainer
	frames   FrameSource
	recorder Recorder
}

// New builds an Enroller. frames and recorder may be nil.
func New(saver Saver, det pipeline.Detector, trainer Retrainer, frames FrameSource, recorder Recorder) *Enroller {
	return &Enroller{saver: saver, detector: det, trainer: trainer, frames: frames, recorder: recorder}
}

// Enroll samples the newest captured frame.
func (e *Enroller) Enroll(ctx context.Context, name string) (Result, error) {
	var f *types.Frame
	if e.frames != nil {
		f = e.frames.Latest()
	}
	return e.EnrollFrame(ctx, name, f)
}

// EnrollFrame saves the first face found in f under name and retrains.
// Frames are mirrored first, the same way the live pipeline sees them.
// If the retrain fails the sample stays on disk, the previous model stays
// installed and the error wraps types.ErrTraining.
func (e *Enroller) EnrollFrame(ctx context.Context, name string, f *types.Frame) (Result, error) {
	if strings.TrimSpace(name) == "" {
		return Result{}, types.ErrEmptyName
	}
	res := Result{Identity: identity.Sanitize(name)}

	if f.Empty() {
		return res, types.ErrNoFrame
	}
	if !pipeline.Available(e.detector) {
		return res, types.ErrModelLoad
	}

	// Detect on the mirrored frame rather than the raw capture, so saved
	// samples have the orientation the pipeline recognizes in.
	gray := imaging.Grayscale(imaging.Mirror(f.Image))
	boxes, err := e.detector.Detect(gray)
	if err != nil {
		return res, fmt.Errorf("detect: %w", err)
	}
	if len(boxes) == 0 {
		return res, types.ErrNoFace
	}

	face, err := imaging.Crop(gray, boxes[0])
	if err != nil {
		return res, types.ErrNoFace
	}
	sample := imaging.Normalize(face, types.SampleSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.saver.Save(res.Identity, sample)
	if err != nil {
		return res, err
	}
	res.Path = entry.Path
	res.Index = entry.Index

	log := logger.Named("enroll")
	log.Info().Str("identity", res.Identity).Str("path", entry.Path).Msg("sample saved")

	if e.recorder != nil {
		if err := e.recorder.RecordEnrollment(ctx, res.Identity, entry.Path); err != nil {
			log.Warn().Err(err).Msg("failed to journal enrollment")
		}
	}

	// A cancelled caller must not leave a saved sample without its retrain.
	stats, err := e.trainer.Retrain(context.WithoutCancel(ctx))
	if err != nil {
		return res, err
	}
	res.Labels = stats.Identities
	res.Ready = stats.Ready
	return res, nil
}
