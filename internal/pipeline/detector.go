package pipeline

import (
	"image"
	"sync"

	"github.com/andresmejia3/vigil/internal/logger"
)

// Detector finds face rectangles in a grayscale frame.
type Detector interface {
	Detect(gray *image.Gray) ([]image.Rectangle, error)
}

// DisabledDetector stands in when no cascade could be loaded. It never finds a face.
type DisabledDetector struct{}

func (DisabledDetector) Detect(*image.Gray) ([]image.Rectangle, error) {
	return nil, nil
}

var warnOnce sync.Once

// Guard returns det, or a DisabledDetector when det could not be loaded.
// The failure is logged once per process.
func Guard(det Detector, err error) Detector {
	if err == nil && det != nil {
		return det
	}
	warnOnce.Do(func() {
		logger.Named("pipeline").Warn().Err(err).Msg("face detection disabled, frames will pass through unannotated")
	})
	return DisabledDetector{}
}

// Available reports whether det can actually find faces.
func Available(det Detector) bool {
	if det == nil {
		return false
	}
	_, disabled := det.(DisabledDetector)
	return !disabled
}
