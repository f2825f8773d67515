package expression

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarstream/internal/blend"
	"github.com/normanking/avatarstream/internal/emotion"
	"github.com/normanking/avatarstream/internal/phoneme"
)

func TestComposeLipSyncWithProfessional(t *testing.T) {
	c := NewController()
	c.SetIdleEnabled(false)

	require.NoError(t, c.SetEmotion(emotion.NameProfessional, 100*time.Millisecond))
	c.Update(200 * time.Millisecond) // transition complete

	// AA spanning 0.0-0.5s sampled at t=0.25: base jawOpen 0.7, full
	// envelope. PROFESSIONAL jawOpen is 0.1, blend weights 1.0 / 0.7.
	m := phoneme.NewMatrix()
	seq := []phoneme.Phoneme{{Label: "AA", Start: 0, End: 0.5}}
	lip := m.WeightsAt(seq, 0.25)

	final := c.BlendedMorphWeights(lip)
	assert.InDelta(t, 1.0*0.7+0.7*0.1, float64(final.Get(blend.JawOpen)), 1e-4)
}

func TestComposedWeightsClamped(t *testing.T) {
	c := NewController()
	c.SetIdleEnabled(false)
	require.NoError(t, c.SetEmotion(emotion.NameSurprised, 0))
	c.Update(time.Second)

	full := blend.NewWeights()
	for i := range full {
		full.Set(blend.Target(i), 1.0)
	}

	final := c.BlendedMorphWeights(full)
	for _, v := range final {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(0))
	}
}

func TestPhaseMultiplier(t *testing.T) {
	c := NewController()
	c.SetIdleEnabled(false)
	require.NoError(t, c.SetEmotion(emotion.NameHappy, 0))
	c.Update(time.Second)

	var silence blend.Weights

	require.NoError(t, c.SetPhase(PhaseIntro))
	intro := c.BlendedMorphWeights(silence).Get(blend.MouthSmileLeft)

	require.NoError(t, c.SetPhase(PhaseMain))
	main := c.BlendedMorphWeights(silence).Get(blend.MouthSmileLeft)

	require.NoError(t, c.SetPhase(PhaseConclusion))
	conclusion := c.BlendedMorphWeights(silence).Get(blend.MouthSmileLeft)

	// HAPPY mouthSmileLeft is 0.6; emotion weight 0.7.
	assert.InDelta(t, 0.7*0.7*0.6, float64(intro), 1e-4)
	assert.InDelta(t, 1.0*0.7*0.6, float64(main), 1e-4)
	assert.InDelta(t, 0.8*0.7*0.6, float64(conclusion), 1e-4)

	assert.Error(t, c.SetPhase(Phase("epilogue")))
}

func TestSetEmotionRejectsUnknown(t *testing.T) {
	c := NewController()

	err := c.SetEmotion("ecstatic", time.Second)
	require.Error(t, err)
	assert.Empty(t, c.History())
}

func TestSentimentHistoryBounded(t *testing.T) {
	c := NewController()

	for i := 0; i < historyCapacity+20; i++ {
		score := float32(i%3-1) * 0.9
		c.SetEmotionFromSentiment(score, emotion.ContextFeedback, time.Millisecond)
		c.Update(10 * time.Millisecond)
	}

	h := c.History()
	assert.Len(t, h, historyCapacity)
	for _, entry := range h {
		assert.NotEmpty(t, entry.State)
	}
}

func TestBlendedArrayOrder(t *testing.T) {
	c := NewController()
	c.SetIdleEnabled(false)

	lip := blend.NewWeights()
	lip.Set(blend.JawOpen, 0.5)

	arr := c.BlendedMorphWeightsArray(lip)
	require.Len(t, arr, int(blend.TargetCount))
	assert.Equal(t, float32(0.5), arr[blend.JawOpen])
}

func ExampleController_SetEmotionFromSentiment() {
	c := NewController()
	name := c.SetEmotionFromSentiment(0.8, emotion.ContextInterview, 300*time.Millisecond)
	fmt.Println(name)
	// Output: happy
}
