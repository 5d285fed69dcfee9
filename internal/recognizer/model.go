// Package recognizer owns the trained face classifier and the label registry
// it was trained with, and the protocol for rebuilding both from the gallery.
package recognizer

import (
	"image"

	"github.com/andresmejia3/vigil/internal/identity"
	"github.com/andresmejia3/vigil/internal/types"
)

// Unknown is the label a classifier reports when it has no usable match.
const Unknown = -1

// Classifier is a trained face classifier. Predict is only ever called with
// normalized samples. Lower distances mean a closer match.
type Classifier interface {
	Predict(sample *image.Gray) (label int, distance float64)
	Close() error
}

// TrainFunc builds a fresh classifier from normalized samples and their labels.
type TrainFunc func(samples []*image.Gray, labels []int) (Classifier, error)

// Model pairs a classifier with the registry its labels refer to.
// A model without a classifier is "not ready" and reports every face as unknown.
type Model struct {
	registry   *identity.Registry
	classifier Classifier
	threshold  float64
}

// NotReady returns a model that has nothing to predict with.
func NotReady(threshold float64) *Model {
	return &Model{registry: identity.Empty, threshold: threshold}
}

// NewModel wraps a trained classifier. A nil classifier yields a not-ready model.
func NewModel(reg *identity.Registry, c Classifier, threshold float64) *Model {
	if reg == nil {
		reg = identity.Empty
	}
	return &Model{registry: reg, classifier: c, threshold: threshold}
}

func (m *Model) Ready() bool {
	return m != nil && m.classifier != nil
}

func (m *Model) Registry() *identity.Registry {
	if m == nil {
		return identity.Empty
	}
	return m.registry
}

func (m *Model) Threshold() float64 {
	return m.threshold
}

// Identify classifies one normalized sample. A match is accepted only when the
// classifier returned a real label, the distance is strictly below the
// threshold and the label exists in this model's registry.
func (m *Model) Identify(sample *image.Gray) types.Recognition {
	rec := types.Recognition{Label: Unknown}
	if !m.Ready() || sample == nil {
		return rec
	}

	label, distance := m.classifier.Predict(sample)
	rec.Distance = distance
	if label == Unknown || distance >= m.threshold {
		return rec
	}
	name, ok := m.registry.Name(label)
	if !ok {
		return rec
	}
	rec.Label = label
	rec.Name = name
	return rec
}

func (m *Model) close() error {
	if m == nil || m.classifier == nil {
		return nil
	}
	return m.classifier.Close()
}
