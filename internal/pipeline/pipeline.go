// Package pipeline turns captured frames into annotated display frames:
// mirror, detect, classify every face and draw the result.
package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/andresmejia3/vigil/internal/imaging"
	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/recognizer"
	"github.com/andresmejia3/vigil/internal/types"
)

// UnknownLabel is drawn above faces that were not accepted.
const UnknownLabel = "unknown"

var boxColor = color.RGBA{0, 255, 0, 255}

// Display receives annotated frames. Publish must not block.
type Display interface {
	Publish(f types.DisplayFrame)
}

// Sink observes recognitions, e.g. to journal sightings. Observe must not block.
type Sink interface {
	Observe(ts time.Time, faces []types.Recognition)
}

// Pipeline processes frames on the caller's goroutine.
type Pipeline struct {
	detector Detector
	slot     *recognizer.Slot
	display  Display
	sink     Sink
}

// New builds a pipeline. display and sink may be nil.
func New(det Detector, slot *recognizer.Slot, display Display, sink Sink) *Pipeline {
	if det == nil {
		det = DisabledDetector{}
	}
	return &Pipeline{detector: det, slot: slot, display: display, sink: sink}
}

// Handle is the capture handler. Any failure drops the frame after logging it.
func (p *Pipeline) Handle(f types.Frame) {
	out, err := p.Process(f)
	if err != nil {
		logger.Named("pipeline").Warn().Err(err).Uint64("seq", f.Seq).Msg("dropping frame")
		return
	}
	if p.sink != nil {
		p.sink.Observe(out.Timestamp, out.Faces)
	}
	if p.display != nil {
		p.display.Publish(out)
	}
}

// Process runs one frame through the pipeline and returns the encoded result.
// Panics from the vision bindings are turned into errors.
func (p *Pipeline) Process(f types.Frame) (out types.DisplayFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame %d: panic: %v", f.Seq, r)
		}
	}()

	if f.Empty() {
		return out, types.ErrNoFrame
	}

	mirrored := imaging.Mirror(f.Image)
	gray := imaging.Grayscale(mirrored)

	boxes, err := p.detector.Detect(gray)
	if err != nil {
		return out, fmt.Errorf("detect: %w", err)
	}

	faces := p.Recognize(gray, boxes)
	Annotate(mirrored, faces)

	data, err := imaging.EncodeJPEG(mirrored)
	if err != nil {
		return out, fmt.Errorf("encode: %w", err)
	}

	return types.DisplayFrame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		JPEG:      data,
		Faces:     faces,
	}, nil
}

// Recognize classifies every region of gray against the installed model.
// Regions that fall outside the frame are dropped.
func (p *Pipeline) Recognize(gray *image.Gray, boxes []image.Rectangle) []types.Recognition {
	if len(boxes) == 0 {
		return nil
	}

	samples := make([]*image.Gray, 0, len(boxes))
	kept := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		face, err := imaging.Crop(gray, b)
		if err != nil {
			continue
		}
		samples = append(samples, imaging.Normalize(face, types.SampleSize))
		kept = append(kept, b.Intersect(gray.Bounds()))
	}

	faces := make([]types.Recognition, len(samples))
	p.slot.View(func(m *recognizer.Model) {
		for i, s := range samples {
			faces[i] = m.Identify(s)
			faces[i].Box = kept[i]
		}
	})
	return faces
}

// Annotate draws a box and a name tag for every face.
func Annotate(img *image.RGBA, faces []types.Recognition) {
	for _, r := range faces {
		name := r.Name
		if !r.Known() {
			name = UnknownLabel
		}
		imaging.DrawRect(img, r.Box, boxColor, 2)
		imaging.DrawLabel(img, name, r.Box, boxColor)
	}
}
