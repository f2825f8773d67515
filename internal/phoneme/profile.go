package phoneme

import (
	"runtime"

	"github.com/normanking/avatarstream/internal/blend"
)

// Epsilon is the agreement bound between the scalar and wide batch paths.
// The equivalence is a correctness contract: the paths use algebraically
// equal but differently associated arithmetic, so they may differ by float
// rounding, never by more than this.
const Epsilon = 1e-4

// Coarticulation blend: the current phoneme dominates, the previous one
// contributes a smaller share so adjacent mouth shapes do not jump.
const (
	coartCurrent  = 0.7
	coartPrevious = 0.3
)

// Envelope fractions within a phoneme's span (rise at onset, fall before
// the next sound).
const (
	envelopeAttack  = 0.1
	envelopeRelease = 0.2
)

func wideCapable() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

// DynamicIntensity blends the base intensity with the previous phoneme's
// contribution for one target. An empty previous label means no context.
func (m *Matrix) DynamicIntensity(label string, t blend.Target, previous string) float32 {
	base := m.Intensity(label, t)
	if previous == "" {
		return base
	}
	prev := m.Intensity(previous, t)
	return blend.Clamp01(coartCurrent*base + coartPrevious*prev)
}

// DynamicWeights is DynamicIntensity across the full vocabulary.
func (m *Matrix) DynamicWeights(label, previous string) blend.Weights {
	base := m.BaseWeights(label)
	if previous == "" {
		return base
	}
	prev := m.BaseWeights(previous)

	var out blend.Weights
	for i := range base {
		out[i] = blend.Clamp01(coartCurrent*base[i] + coartPrevious*prev[i])
	}
	return out
}

// IntensityProfile produces one full weight vector per phoneme in order,
// each coarticulated with its predecessor. This is the batch path; the
// wide variant is used when the platform supports it.
func (m *Matrix) IntensityProfile(seq []Phoneme) []blend.Weights {
	if m.wideEnabled {
		return m.profileWide(seq)
	}
	return m.profileScalar(seq)
}

func (m *Matrix) profileScalar(seq []Phoneme) []blend.Weights {
	out := make([]blend.Weights, len(seq))
	prev := ""
	for i, p := range seq {
		out[i] = m.DynamicWeights(p.Label, prev)
		prev = p.Label
	}
	return out
}

// profileWide computes the same profile with 4-lane unrolled arithmetic in
// the fused form base + k*(prev-base). Must agree with profileScalar
// within Epsilon.
func (m *Matrix) profileWide(seq []Phoneme) []blend.Weights {
	out := make([]blend.Weights, len(seq))
	prevLabel := ""
	for i, p := range seq {
		base := m.BaseWeights(p.Label)
		if prevLabel == "" {
			out[i] = base
			prevLabel = p.Label
			continue
		}
		prev := m.BaseWeights(prevLabel)

		var w blend.Weights
		n := len(base) - len(base)%4
		for j := 0; j < n; j += 4 {
			w[j] = blend.Clamp01(base[j] + coartPrevious*(prev[j]-base[j]))
			w[j+1] = blend.Clamp01(base[j+1] + coartPrevious*(prev[j+1]-base[j+1]))
			w[j+2] = blend.Clamp01(base[j+2] + coartPrevious*(prev[j+2]-base[j+2]))
			w[j+3] = blend.Clamp01(base[j+3] + coartPrevious*(prev[j+3]-base[j+3]))
		}
		for j := n; j < len(base); j++ {
			w[j] = blend.Clamp01(base[j] + coartPrevious*(prev[j]-base[j]))
		}
		out[i] = w
		prevLabel = p.Label
	}
	return out
}

// WeightsAt samples a sequence at time t: the covering phoneme's
// coarticulated vector scaled by an attack/release envelope. Gaps and
// unknown labels read as silence.
func (m *Matrix) WeightsAt(seq []Phoneme, t float64) blend.Weights {
	prev := ""
	for _, p := range seq {
		if t >= p.Start && t < p.End {
			w := m.DynamicWeights(p.Label, prev)
			return w.Scale(envelope(progressIn(p, t)))
		}
		if p.End <= t {
			prev = p.Label
		}
	}
	return blend.NewWeights()
}

func progressIn(p Phoneme, t float64) float32 {
	d := p.Duration()
	if d <= 0 {
		return 1
	}
	return blend.Clamp01(float32((t - p.Start) / d))
}

func envelope(progress float32) float32 {
	if progress < envelopeAttack {
		return progress / envelopeAttack
	}
	if progress > 1-envelopeRelease {
		return (1 - progress) / envelopeRelease
	}
	return 1
}
