package proximity

import (
	"sync/atomic"

	"github.com/grovetools/tether/errors"
)

// MaxThreshold is the largest radius, in meters, a host may configure.
const MaxThreshold = 2000

// DefaultThresholds classify distances when neither the server nor the host
// supplied a valid triple.
var DefaultThresholds = Thresholds{Safe: 100, Warning: 200, Danger: 300}

// Thresholds are the three radii, in meters, that separate the tiers.
type Thresholds struct {
	Safe    float64 `json:"safe" yaml:"safe"`
	Warning float64 `json:"warning" yaml:"warning"`
	Danger  float64 `json:"danger" yaml:"danger"`
}

// ValidateThresholds checks 0 <= safe < warning < danger <= MaxThreshold.
// Values are never clamped; the first violation is returned.
func ValidateThresholds(t Thresholds) error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"safe", t.Safe},
		{"warning", t.Warning},
		{"danger", t.Danger},
	} {
		// NaN fails both comparisons, so test for the valid range instead.
		if !(f.value >= 0 && f.value <= MaxThreshold) {
			return errors.ThresholdOutOfRange(f.name, f.value, MaxThreshold)
		}
	}
	if !(t.Safe < t.Warning && t.Warning < t.Danger) {
		return errors.ThresholdOutOfOrder(t.Safe, t.Warning, t.Danger)
	}
	return nil
}

// ThresholdStore holds the active thresholds. Readers always observe a complete
// triple that passed validation.
type ThresholdStore struct {
	current atomic.Pointer[Thresholds]
}

// NewThresholdStore validates initial and returns a store holding it.
func NewThresholdStore(initial Thresholds) (*ThresholdStore, error) {
	if err := ValidateThresholds(initial); err != nil {
		return nil, err
	}
	s := &ThresholdStore{}
	s.current.Store(&initial)
	return s, nil
}

// Load returns the active thresholds.
func (s *ThresholdStore) Load() Thresholds {
	if t := s.current.Load(); t != nil {
		return *t
	}
	return Thresholds{}
}

// Set validates t and swaps it in. On failure the active value is unchanged.
func (s *ThresholdStore) Set(t Thresholds) error {
	if err := ValidateThresholds(t); err != nil {
		return err
	}
	s.current.Store(&t)
	return nil
}
