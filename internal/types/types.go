package types

import (
	"image"
	"time"
)

// SampleSize is the edge length of every normalized face sample.
const SampleSize = 100

// Frame is a single captured image. It is never mutated once published by the capture loop.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     *image.RGBA
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Image == nil || f.Image.Bounds().Empty()
}

// Recognition is the outcome for one detected face in one frame.
type Recognition struct {
	Box      image.Rectangle `json:"box"`
	Name     string          `json:"name"` // Empty when the face is unidentified
	Label    int             `json:"label"`
	Distance float64         `json:"distance"`
}

// Known reports whether the face was accepted as an enrolled identity.
func (r Recognition) Known() bool {
	return r.Name != ""
}

// DisplayFrame is the annotated, encoded output handed to the display collaborator.
type DisplayFrame struct {
	Seq       uint64
	Timestamp time.Time
	JPEG      []byte
	Faces     []Recognition
}

// Sighting is a closed interval during which an identity was continuously recognized.
type Sighting struct {
	Identity     string
	Start        time.Time
	End          time.Time
	FrameCount   int
	BestDistance float64
}
