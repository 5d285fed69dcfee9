// Package vision binds the OpenCV pieces vigil uses: the Haar cascade face
// detector, the LBPH recognizer and camera devices.
package vision

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/andresmejia3/vigil/internal/types"
	"gocv.io/x/gocv"
)

// Detection parameters for the frontal-face cascade.
const (
	ScaleFactor  = 1.1
	MinNeighbors = 5
	MinFaceSize  = 50
)

// Cascade is a loaded Haar cascade. It is safe for concurrent use.
type Cascade struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	closed     bool
}

// ErrCascadeClosed is returned by Detect after Close.
var ErrCascadeClosed = errors.New("cascade classifier already closed")

// LoadCascade reads a cascade XML file. A missing or unparsable file yields
// types.ErrModelLoad.
func LoadCascade(path string) (*Cascade, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrModelLoad, err)
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("%w: failed to load cascade classifier from %s", types.ErrModelLoad, path)
	}
	return &Cascade{classifier: classifier}, nil
}

// Detect returns face rectangles in gray, in the order the cascade reports them.
// A frame still in flight when the cascade is closed gets ErrCascadeClosed.
func (c *Cascade) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCascadeClosed
	}

	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	faces := c.classifier.DetectMultiScaleWithParams(
		mat,
		ScaleFactor,
		MinNeighbors,
		0,
		image.Pt(MinFaceSize, MinFaceSize),
		image.Point{}, // no upper bound
	)

	// Rectangles are relative to the Mat; shift them back into gray's space.
	off := gray.Bounds().Min
	for i := range faces {
		faces[i] = faces[i].Add(off)
	}
	return faces, nil
}

func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.classifier.Close()
}
