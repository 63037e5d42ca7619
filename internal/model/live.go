package model

import (
	"sync"
)

// Live holds the active model. Readers never observe a half-replaced model:
// a promotion builds and loads a complete instance first and then swaps the reference.
type Live struct {
	mu      sync.RWMutex
	current Model
	factory Factory
}

// NewLive creates a holder with an unloaded instance from factory
func NewLive(factory Factory) *Live {
	return &Live{
		current: factory(),
		factory: factory,
	}
}

// New returns a fresh, unloaded instance for throwaway evaluation
func (l *Live) New() Model {
	return l.factory()
}

// Current returns the active instance
func (l *Live) Current() Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Swap installs m as the active instance and returns the previous one
func (l *Live) Swap(m Model) Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.current
	l.current = m
	return prev
}

// Load builds a new instance from path and swaps it in. The active model is
// untouched if loading fails.
func (l *Live) Load(path string) error {
	m := l.factory()
	if err := m.Load(path); err != nil {
		return err
	}
	l.Swap(m)
	return nil
}

// Predict delegates to the active instance
func (l *Live) Predict(text string) []Prediction {
	m := l.Current()
	if !m.IsLoaded() {
		return nil
	}
	return m.Predict(text)
}

// TextConfidence delegates to the active instance; 0 when nothing is loaded
func (l *Live) TextConfidence(text string) float64 {
	m := l.Current()
	if !m.IsLoaded() {
		return 0
	}
	return m.TextConfidence(text)
}

// IsLoaded reports whether the active instance holds a model
func (l *Live) IsLoaded() bool {
	return l.Current().IsLoaded()
}
