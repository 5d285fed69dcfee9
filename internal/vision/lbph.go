package vision

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/andresmejia3/vigil/internal/recognizer"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// LBPH parameters. The internal threshold is left permissive; acceptance is
// decided by recognizer.Model.
const (
	LBPHRadius    = 1
	LBPHNeighbors = 8
)

// LBPH is a trained local binary patterns histogram recognizer.
type LBPH struct {
	mu sync.Mutex
	fr *contrib.LBPHFaceRecognizer
}

// TrainLBPH is a recognizer.TrainFunc backed by OpenCV's LBPH recognizer.
func TrainLBPH(samples []*image.Gray, labels []int) (c recognizer.Classifier, err error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, fmt.Errorf("need matching samples and labels, got %d and %d", len(samples), len(labels))
	}

	mats := make([]gocv.Mat, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for i, s := range samples {
		m, err := gocv.ImageGrayToMatGray(s)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		mats = append(mats, m)
	}

	fr := contrib.NewLBPHFaceRecognizer()
	fr.SetRadius(LBPHRadius)
	fr.SetNeighbors(LBPHNeighbors)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lbph training panicked: %v", r)
			c = nil
		}
	}()
	fr.Train(mats, labels)

	return &LBPH{fr: fr}, nil
}

// Predict returns the closest label and its distance, or recognizer.Unknown
// when the sample cannot be classified.
func (l *LBPH) Predict(sample *image.Gray) (int, float64) {
	m, err := gocv.ImageGrayToMatGray(sample)
	if err != nil {
		return recognizer.Unknown, 0
	}
	defer m.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fr == nil {
		return recognizer.Unknown, 0
	}
	res := l.fr.PredictExtendedResponse(m)
	return int(res.Label), float64(res.Confidence)
}

func (l *LBPH) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fr == nil {
		return errors.New("lbph recognizer already closed")
	}
	var err error
	// Older gocv releases have no Close on the recognizer.
	if closer, ok := any(l.fr).(io.Closer); ok {
		err = closer.Close()
	}
	l.fr = nil
	return err
}
