package recognizer

import (
	"sync"

	"github.com/andresmejia3/vigil/internal/logger"
)

// Slot holds the currently installed model. Readers hold the read lock for as
// long as they predict, so a retired classifier is closed only once nobody is
// using it.
type Slot struct {
	mu    sync.RWMutex
	model *Model
}

// NewSlot starts out with a not-ready model.
func NewSlot(threshold float64) *Slot {
	return &Slot{model: NotReady(threshold)}
}

// View runs fn with the installed model. The model must not be retained after
// fn returns.
func (s *Slot) View(fn func(m *Model)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.model)
}

// Snapshot returns the installed model for metadata reads (readiness,
// registry). Use View to predict.
func (s *Slot) Snapshot() *Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Install swaps in m and releases the classifier it replaces.
func (s *Slot) Install(m *Model) {
	s.mu.Lock()
	old := s.model
	s.model = m
	s.mu.Unlock()

	if old == m {
		return
	}
	if err := old.close(); err != nil {
		logger.Named("recognizer").Warn().Err(err).Msg("failed to release retired classifier")
	}
}

// Close releases the installed classifier and leaves a not-ready model behind.
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.model.close()
	s.model = NotReady(s.model.threshold)
	return err
}

// Ready reports whether the installed model can recognize anyone.
func (s *Slot) Ready() bool {
	return s.Snapshot().Ready()
}

// Identities lists the names the installed model was trained on, by label.
func (s *Slot) Identities() []string {
	return s.Snapshot().Registry().Names()
}
