// Package phoneme maps timed speech sounds to base morph-target intensities.
// Labels follow the ARPAbet inventory; anything outside it is treated as
// silence because upstream timing sources are not under our control.
package phoneme

import "github.com/normanking/avatarstream/internal/blend"

// Phoneme is one timed speech sound. Sequences are ordered and
// non-overlapping by convention; gaps mean silence.
type Phoneme struct {
	Label string  `json:"phoneme"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration in seconds.
func (p Phoneme) Duration() float64 {
	return p.End - p.Start
}

type mapping struct {
	target blend.Target
	weight float32
}

// Base intensities per phoneme. Vowels open the jaw and shape the lips,
// consonants mostly close or narrow the mouth.
var phonemeMappings = map[string][]mapping{
	// Silence
	"SIL": nil,
	"SP":  nil,

	// Vowels
	"AA": {{blend.JawOpen, 0.7}, {blend.MouthStretchLeft, 0.2}, {blend.MouthStretchRight, 0.2}},
	"AE": {{blend.JawOpen, 0.55}, {blend.MouthStretchLeft, 0.3}, {blend.MouthStretchRight, 0.3}},
	"AH": {{blend.JawOpen, 0.45}, {blend.MouthStretchLeft, 0.1}, {blend.MouthStretchRight, 0.1}},
	"AO": {{blend.JawOpen, 0.55}, {blend.MouthFunnel, 0.35}, {blend.MouthPucker, 0.2}},
	"AW": {{blend.JawOpen, 0.5}, {blend.MouthFunnel, 0.3}, {blend.MouthPucker, 0.3}},
	"AY": {{blend.JawOpen, 0.5}, {blend.MouthSmileLeft, 0.2}, {blend.MouthSmileRight, 0.2}},
	"EH": {{blend.JawOpen, 0.4}, {blend.MouthSmileLeft, 0.25}, {blend.MouthSmileRight, 0.25}},
	"ER": {{blend.JawOpen, 0.3}, {blend.MouthPucker, 0.35}, {blend.MouthFunnel, 0.2}},
	"EY": {{blend.JawOpen, 0.35}, {blend.MouthSmileLeft, 0.3}, {blend.MouthSmileRight, 0.3}},
	"IH": {{blend.JawOpen, 0.25}, {blend.MouthSmileLeft, 0.35}, {blend.MouthSmileRight, 0.35}},
	"IY": {{blend.JawOpen, 0.2}, {blend.MouthSmileLeft, 0.45}, {blend.MouthSmileRight, 0.45}},
	"OW": {{blend.JawOpen, 0.45}, {blend.MouthFunnel, 0.5}, {blend.MouthPucker, 0.35}},
	"OY": {{blend.JawOpen, 0.45}, {blend.MouthFunnel, 0.4}, {blend.MouthPucker, 0.3}},
	"UH": {{blend.JawOpen, 0.3}, {blend.MouthPucker, 0.4}, {blend.MouthFunnel, 0.3}},
	"UW": {{blend.JawOpen, 0.25}, {blend.MouthPucker, 0.6}, {blend.MouthFunnel, 0.4}},

	// Stops
	"P": {{blend.MouthClose, 0.8}, {blend.MouthPressLeft, 0.3}, {blend.MouthPressRight, 0.3}},
	"B": {{blend.MouthClose, 0.75}, {blend.MouthPressLeft, 0.3}, {blend.MouthPressRight, 0.3}},
	"T": {{blend.JawOpen, 0.2}, {blend.MouthUpperUpLeft, 0.2}, {blend.MouthUpperUpRight, 0.2}},
	"D": {{blend.JawOpen, 0.2}, {blend.MouthUpperUpLeft, 0.2}, {blend.MouthUpperUpRight, 0.2}},
	"K": {{blend.JawOpen, 0.25}, {blend.MouthStretchLeft, 0.2}, {blend.MouthStretchRight, 0.2}},
	"G": {{blend.JawOpen, 0.25}, {blend.MouthStretchLeft, 0.2}, {blend.MouthStretchRight, 0.2}},

	// Nasals
	"M":  {{blend.MouthClose, 0.85}, {blend.MouthPucker, 0.15}},
	"N":  {{blend.JawOpen, 0.15}, {blend.MouthClose, 0.3}},
	"NG": {{blend.JawOpen, 0.2}, {blend.MouthClose, 0.25}},

	// Fricatives
	"F":  {{blend.MouthFunnel, 0.45}, {blend.MouthLowerDownLeft, 0.25}, {blend.MouthLowerDownRight, 0.25}},
	"V":  {{blend.MouthFunnel, 0.4}, {blend.MouthLowerDownLeft, 0.25}, {blend.MouthLowerDownRight, 0.25}},
	"TH": {{blend.MouthFunnel, 0.3}, {blend.TongueOut, 0.4}},
	"DH": {{blend.MouthFunnel, 0.3}, {blend.TongueOut, 0.35}},
	"S":  {{blend.MouthStretchLeft, 0.3}, {blend.MouthStretchRight, 0.3}, {blend.JawOpen, 0.1}},
	"Z":  {{blend.MouthStretchLeft, 0.3}, {blend.MouthStretchRight, 0.3}, {blend.JawOpen, 0.1}},
	"SH": {{blend.MouthFunnel, 0.45}, {blend.MouthPucker, 0.3}},
	"ZH": {{blend.MouthFunnel, 0.45}, {blend.MouthPucker, 0.3}},
	"HH": {{blend.JawOpen, 0.3}},

	// Affricates
	"CH": {{blend.MouthFunnel, 0.4}, {blend.MouthPucker, 0.3}},
	"JH": {{blend.MouthFunnel, 0.4}, {blend.MouthPucker, 0.25}},

	// Approximants
	"L": {{blend.JawOpen, 0.25}, {blend.TongueOut, 0.2}},
	"R": {{blend.MouthPucker, 0.4}, {blend.MouthFunnel, 0.2}},
	"W": {{blend.MouthPucker, 0.55}, {blend.MouthFunnel, 0.35}, {blend.JawOpen, 0.15}},
	"Y": {{blend.JawOpen, 0.2}, {blend.MouthSmileLeft, 0.3}, {blend.MouthSmileRight, 0.3}},
}

// Matrix is the phoneme-to-intensity lookup table. The table itself is
// immutable after construction; the only mutable knob is the batch path
// selection.
type Matrix struct {
	base map[string]blend.Weights

	wideEnabled bool
}

func NewMatrix() *Matrix {
	base := make(map[string]blend.Weights, len(phonemeMappings))
	for label, mappings := range phonemeMappings {
		var w blend.Weights
		for _, m := range mappings {
			w.Set(m.target, m.weight)
		}
		base[label] = w
	}
	return &Matrix{
		base:        base,
		wideEnabled: wideCapable(),
	}
}

// SetWideEnabled forces the batch path selection. Both paths agree within
// Epsilon; this knob exists for tests and benchmarking.
func (m *Matrix) SetWideEnabled(enabled bool) {
	m.wideEnabled = enabled
}

func (m *Matrix) WideEnabled() bool {
	return m.wideEnabled
}

// Known reports whether a label is part of the inventory.
func (m *Matrix) Known(label string) bool {
	_, ok := m.base[label]
	return ok
}

// Intensity returns the base intensity for one phoneme/target pair.
// Unknown labels read as silence (zero).
func (m *Matrix) Intensity(label string, t blend.Target) float32 {
	w, ok := m.base[label]
	if !ok {
		return 0
	}
	return w.Get(t)
}

// BaseWeights returns the full base vector for a phoneme. Unknown labels
// return the zero (silence) vector.
func (m *Matrix) BaseWeights(label string) blend.Weights {
	return m.base[label]
}
