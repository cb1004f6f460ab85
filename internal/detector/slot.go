package detector

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Handle is the loaded detector together with the config it was built from.
type Handle struct {
	Detector Detector
	Config   ModelConfig
}

// Slot is the synchronized holder of the active detector.
//
// A single mutex serializes loading, clearing, per-frame use and any state the
// caller chooses to guard with Locked. At most one detector is reachable from
// the slot, and a replaced detector is closed before its successor is built.
type Slot struct {
	mu           sync.Mutex
	det          Detector
	cfg          ModelConfig
	factory      Factory
	accelerators func() int
}

// NewSlot creates an empty slot that builds detectors with factory.
// accelerators reports the number of usable accelerator devices; nil uses AcceleratorCount.
func NewSlot(factory Factory, accelerators func() int) *Slot {
	if accelerators == nil {
		accelerators = AcceleratorCount
	}
	return &Slot{
		factory:      factory,
		accelerators: accelerators,
	}
}

// Load validates cfg and replaces the current detector with a new one.
//
// Load policy:
//  1. Invalid config: ErrInvalidConfig, slot untouched
//  2. Accelerated backend with no accelerator: slot cleared, nil returned
//  3. Otherwise: old detector closed, new detector built; on failure the
//     slot stays empty and the error wraps ErrInit
func (s *Slot) Load(cfg ModelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Backend == BackendAccelerated && s.accelerators() == 0 {
		log.Warn().Err(ErrNoAccelerator).Str("model", cfg.String()).Msg("Accelerated backend unavailable, detector cleared")
		s.clearLocked()
		return nil
	}

	s.clearLocked()

	if s.factory == nil {
		return fmt.Errorf("%w: no detector factory configured", ErrInit)
	}

	d, err := s.factory(cfg)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInit, cfg, err)
	}
	if d == nil {
		return fmt.Errorf("%w: %s: factory returned no detector", ErrInit, cfg)
	}

	s.det = d
	s.cfg = cfg
	log.Info().Str("model", cfg.String()).Msg("Detector loaded")
	return nil
}

// Clear closes the current detector, if any. Clearing an empty slot is a no-op.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Slot) clearLocked() {
	if s.det == nil {
		return
	}
	if err := s.det.Close(); err != nil {
		log.Warn().Err(err).Str("model", s.cfg.String()).Msg("Error closing detector")
	}
	s.det = nil
	s.cfg = ModelConfig{}
}

// WithDetector runs fn with the loaded detector while holding the slot lock.
// If no detector is loaded, degraded is called instead (also under the lock).
// Either callback may be nil.
func (s *Slot) WithDetector(frame *gocv.Mat, fn func(h Handle, frame *gocv.Mat), degraded func(frame *gocv.Mat)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.det == nil {
		if degraded != nil {
			degraded(frame)
		}
		return
	}
	if fn != nil {
		fn(Handle{Detector: s.det, Config: s.cfg}, frame)
	}
}

// Locked runs fn while holding the slot lock.
// fn must not call back into the slot.
func (s *Slot) Locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Config returns the config of the loaded detector.
// The second return value is false when the slot is empty.
func (s *Slot) Config() (ModelConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.det != nil
}

// Loaded reports whether a detector is currently loaded.
func (s *Slot) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.det != nil
}
