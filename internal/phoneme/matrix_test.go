package phoneme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarstream/internal/blend"
)

func TestBaseIntensities(t *testing.T) {
	m := NewMatrix()

	assert.Equal(t, float32(0.7), m.Intensity("AA", blend.JawOpen))
	assert.Equal(t, float32(0.8), m.Intensity("P", blend.MouthClose))
	assert.Equal(t, float32(0.6), m.Intensity("UW", blend.MouthPucker))

	// Silence carries no weight at all.
	assert.Equal(t, blend.NewWeights(), m.BaseWeights("SIL"))
}

func TestUnknownPhonemeIsSilence(t *testing.T) {
	m := NewMatrix()

	assert.False(t, m.Known("XX"))
	assert.Equal(t, float32(0), m.Intensity("XX", blend.JawOpen))
	assert.Equal(t, blend.NewWeights(), m.BaseWeights("XX"))

	// Batch path tolerates unknown labels mid-sequence.
	profile := m.IntensityProfile([]Phoneme{
		{Label: "AA", Start: 0, End: 0.1},
		{Label: "XX", Start: 0.1, End: 0.2},
		{Label: "IY", Start: 0.2, End: 0.3},
	})
	require.Len(t, profile, 3)
	assert.InDelta(t, 0.3*0.7, float64(profile[1].Get(blend.JawOpen)), Epsilon)
}

func TestCoarticulationBlend(t *testing.T) {
	m := NewMatrix()

	// 70/30 with the previous phoneme.
	got := m.DynamicIntensity("AA", blend.JawOpen, "P")
	want := float32(0.7*0.7 + 0.3*0.0)
	assert.InDelta(t, float64(want), float64(got), 1e-6)

	got = m.DynamicIntensity("P", blend.MouthClose, "AA")
	want = float32(0.7*0.8 + 0.3*0.0)
	assert.InDelta(t, float64(want), float64(got), 1e-6)

	// No context: base value untouched.
	assert.Equal(t, m.Intensity("AA", blend.JawOpen), m.DynamicIntensity("AA", blend.JawOpen, ""))
}

func TestScalarWideEquivalence(t *testing.T) {
	m := NewMatrix()

	seq := []Phoneme{
		{Label: "HH", Start: 0.00, End: 0.08},
		{Label: "EH", Start: 0.08, End: 0.18},
		{Label: "L", Start: 0.18, End: 0.26},
		{Label: "OW", Start: 0.26, End: 0.44},
		{Label: "W", Start: 0.50, End: 0.58},
		{Label: "ER", Start: 0.58, End: 0.70},
		{Label: "L", Start: 0.70, End: 0.78},
		{Label: "D", Start: 0.78, End: 0.86},
		{Label: "XX", Start: 0.86, End: 0.90},
		{Label: "AA", Start: 0.90, End: 1.10},
	}

	scalar := m.profileScalar(seq)
	wide := m.profileWide(seq)
	require.Equal(t, len(scalar), len(wide))

	for i := range scalar {
		for j := range scalar[i] {
			assert.InDelta(t, float64(scalar[i][j]), float64(wide[i][j]), Epsilon,
				"phoneme %d target %s", i, blend.TargetNames[j])
		}
	}
}

func TestIntensityProfileOrder(t *testing.T) {
	m := NewMatrix()
	m.SetWideEnabled(false)

	seq := []Phoneme{
		{Label: "AA", Start: 0, End: 0.2},
		{Label: "P", Start: 0.2, End: 0.3},
	}
	profile := m.IntensityProfile(seq)
	require.Len(t, profile, 2)

	// First entry has no context, second is pulled toward AA.
	assert.Equal(t, float32(0.7), profile[0].Get(blend.JawOpen))
	assert.InDelta(t, 0.3*0.7, float64(profile[1].Get(blend.JawOpen)), 1e-6)
	assert.InDelta(t, 0.7*0.8, float64(profile[1].Get(blend.MouthClose)), 1e-6)
}

func TestWeightsAtEnvelope(t *testing.T) {
	m := NewMatrix()
	seq := []Phoneme{{Label: "AA", Start: 0, End: 0.5}}

	// Mid-phoneme: full envelope.
	w := m.WeightsAt(seq, 0.25)
	assert.Equal(t, float32(0.7), w.Get(blend.JawOpen))

	// Onset: attack ramp.
	w = m.WeightsAt(seq, 0.0)
	assert.Equal(t, float32(0), w.Get(blend.JawOpen))

	// Gap after the phoneme: silence.
	w = m.WeightsAt(seq, 0.75)
	assert.Equal(t, blend.NewWeights(), w)

	// Before the sequence: silence.
	w = m.WeightsAt(seq, -1)
	assert.Equal(t, blend.NewWeights(), w)
}

func TestInventoryCovered(t *testing.T) {
	m := NewMatrix()

	vowels := []string{"AA", "AE", "AH", "AO", "AW", "AY", "EH", "ER", "EY", "IH", "IY", "OW", "OY", "UH", "UW"}
	consonants := []string{"B", "CH", "D", "DH", "F", "G", "HH", "JH", "K", "L", "M", "N", "NG", "P", "R", "S", "SH", "T", "TH", "V", "W", "Y", "Z", "ZH"}

	for _, label := range append(vowels, consonants...) {
		assert.True(t, m.Known(label), label)
	}
	for _, label := range vowels {
		w := m.BaseWeights(label)
		nonZero := false
		for _, v := range w {
			if v > 0 {
				nonZero = true
				break
			}
		}
		assert.True(t, nonZero, "vowel %s must shape the mouth", label)
	}
}
