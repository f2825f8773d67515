package emotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarstream/internal/blend"
)

func newQuietEngine() *Engine {
	e := NewEngine()
	e.SetIdleEnabled(false)
	return e
}

func TestBlendConvergence(t *testing.T) {
	e := newQuietEngine()
	e.SetEmotionEased(Happy, 500*time.Millisecond, Linear)

	// Progress 0: still neutral.
	w := e.CurrentMorphWeights()
	assert.Equal(t, Neutral.Weights, w)

	// Monotonically non-decreasing toward the target under linear easing.
	prev := float32(0)
	for i := 0; i < 10; i++ {
		e.Update(50 * time.Millisecond)
		w = e.CurrentMorphWeights()
		smile := w.Get(blend.MouthSmileLeft)
		assert.GreaterOrEqual(t, smile, prev)
		prev = smile
	}

	// Progress 1: exactly the target.
	assert.Equal(t, Happy.Weights, e.CurrentMorphWeights())
	assert.Equal(t, float32(0.6), e.CurrentMorphWeights().Get(blend.MouthSmileLeft))
	assert.Equal(t, NameHappy, e.Current().Name)
}

func TestSetEmotionIgnoredWhenAtTarget(t *testing.T) {
	e := newQuietEngine()
	e.SetEmotion(Happy, 100*time.Millisecond)
	e.Update(200 * time.Millisecond)
	require.Equal(t, float32(1), e.TransitionProgress())

	// Re-targeting the resting state must not restart a transition.
	e.SetEmotion(Happy, 100*time.Millisecond)
	assert.Equal(t, float32(1), e.TransitionProgress())
	assert.Equal(t, Happy.Weights, e.CurrentMorphWeights())
}

func TestSetEmotionByNameRejectsUnknown(t *testing.T) {
	e := newQuietEngine()

	err := e.SetEmotionByName("furious", time.Second)
	require.Error(t, err)
	var unknown *ErrUnknownState
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "furious", unknown.Name)

	require.NoError(t, e.SetEmotionByName(NameProfessional, time.Second))
	assert.Equal(t, NameProfessional, e.Current().Name)
}

func TestTransitionStartsFromBlendedState(t *testing.T) {
	e := newQuietEngine()
	e.SetEmotionEased(Happy, 1000*time.Millisecond, Linear)
	e.Update(500 * time.Millisecond)

	midSmile := e.CurrentMorphWeights().Get(blend.MouthSmileLeft)
	require.InDelta(t, 0.3, midSmile, 1e-4)

	// Redirect mid-flight: the new transition must depart from the blend,
	// not snap back to the old resting state.
	e.SetEmotionEased(Sad, 1000*time.Millisecond, Linear)
	w := e.CurrentMorphWeights()
	assert.InDelta(t, float64(midSmile), float64(w.Get(blend.MouthSmileLeft)), 1e-4)
}

func TestBlinkProfile(t *testing.T) {
	e := NewEngine()

	// Clock 0 sits at the start of a blink window; mid-window the lids
	// must be driven, and outside the window released.
	e.Update(75 * time.Millisecond)
	require.True(t, e.IsBlinking())
	w := e.CurrentMorphWeights()
	assert.Greater(t, w.Get(blend.EyeBlinkLeft), float32(0.5))
	assert.Equal(t, w.Get(blend.EyeBlinkLeft), w.Get(blend.EyeBlinkRight))

	e.Update(500 * time.Millisecond)
	assert.False(t, e.IsBlinking())
	assert.Equal(t, float32(0), e.CurrentMorphWeights().Get(blend.EyeBlinkLeft))
}

func TestIdleNoiseDeterministic(t *testing.T) {
	a := NewEngine()
	b := NewEngine()

	for i := 0; i < 30; i++ {
		a.Update(33 * time.Millisecond)
		b.Update(33 * time.Millisecond)
	}
	assert.Equal(t, a.CurrentMorphWeights(), b.CurrentMorphWeights())
}

func TestWeightsAlwaysClamped(t *testing.T) {
	e := NewEngine()
	e.SetEmotion(Surprised, 200*time.Millisecond)

	for i := 0; i < 200; i++ {
		e.Update(16 * time.Millisecond)
		w := e.CurrentMorphWeights()
		for _, v := range w {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
	}
}

func TestEasingBounds(t *testing.T) {
	for name, fn := range map[string]Easing{
		"linear":     Linear,
		"easeIn":     EaseIn,
		"easeOut":    EaseOut,
		"easeInOut":  EaseInOut,
		"smoothstep": Smoothstep,
	} {
		assert.InDelta(t, 0, float64(fn(0)), 1e-6, name)
		assert.InDelta(t, 1, float64(fn(1)), 1e-6, name)

		prev := float32(-1)
		for i := 0; i <= 20; i++ {
			v := fn(float32(i) / 20)
			assert.GreaterOrEqual(t, v, prev, name)
			prev = v
		}
	}
}

func TestFromSentimentDeterministic(t *testing.T) {
	cases := []struct {
		score float32
		ctx   Context
		want  string
	}{
		{0.8, ContextInterview, NameHappy},
		{0.0, ContextInterview, NameProfessional},
		{-0.4, ContextInterview, NameThoughtful},
		{-0.9, ContextInterview, NameSad},
		{0.7, ContextFeedback, NameHappy},
		{-0.3, ContextFeedback, NameConfused},
		{-0.8, ContextFeedback, NameSad},
		{0.6, ContextQuestion, NameSurprised},
		{0.0, ContextQuestion, NameThoughtful},
		{-0.7, ContextQuestion, NameConfused},
		{0.9, Context("other"), NameHappy},
		{-0.9, Context("other"), NameSad},
		{0.1, Context("other"), NameNeutral},
	}

	for _, tc := range cases {
		got := FromSentiment(tc.score, tc.ctx)
		assert.Equal(t, tc.want, got.Name, "score=%v ctx=%v", tc.score, tc.ctx)
		// Same inputs, same output.
		assert.Equal(t, got.Name, FromSentiment(tc.score, tc.ctx).Name)
	}
}
