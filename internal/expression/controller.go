// Package expression composes lip-sync intensities with the emotion
// engine's output into the final per-frame weight vector.
package expression

import (
	"fmt"
	"sync"
	"time"

	"github.com/normanking/avatarstream/internal/blend"
	"github.com/normanking/avatarstream/internal/emotion"
)

const (
	DefaultLipSyncWeight = 1.0
	DefaultEmotionWeight = 0.7

	historyCapacity = 64
)

// Phase scales emotion intensity over the arc of a conversation so
// openings and closings are not over-expressive.
type Phase string

const (
	PhaseIntro      Phase = "intro"
	PhaseMain       Phase = "main"
	PhaseConclusion Phase = "conclusion"
)

var phaseMultipliers = map[Phase]float32{
	PhaseIntro:      0.7,
	PhaseMain:       1.0,
	PhaseConclusion: 0.8,
}

// PhaseMultiplier returns the intensity scale for a phase, 1.0 for
// unknown phases.
func PhaseMultiplier(p Phase) float32 {
	if m, ok := phaseMultipliers[p]; ok {
		return m
	}
	return 1.0
}

// HistoryEntry records one emotion change for diagnostics. Not part of the
// rendering contract.
type HistoryEntry struct {
	State     string
	Sentiment float32
	Context   emotion.Context
	At        time.Time
}

type Controller struct {
	mu sync.RWMutex

	engine *emotion.Engine

	lipSyncWeight float32
	emotionWeight float32
	phase         Phase

	history []HistoryEntry
}

func NewController() *Controller {
	return &Controller{
		engine:        emotion.NewEngine(),
		lipSyncWeight: DefaultLipSyncWeight,
		emotionWeight: DefaultEmotionWeight,
		phase:         PhaseMain,
	}
}

// Engine exposes the underlying emotion engine for Update calls.
func (c *Controller) Engine() *emotion.Engine {
	return c.engine
}

// SetIdleEnabled disables blink and micro-noise for deterministic runs.
func (c *Controller) SetIdleEnabled(enabled bool) {
	c.engine.SetIdleEnabled(enabled)
}

func (c *Controller) SetBlendWeights(lipSync, emotionWeight float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lipSyncWeight = lipSync
	c.emotionWeight = emotionWeight
}

func (c *Controller) SetPhase(phase Phase) error {
	if _, ok := phaseMultipliers[phase]; !ok {
		return fmt.Errorf("unknown conversation phase %q", phase)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	return nil
}

func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// SetEmotion validates the name against the built-in set and starts the
// transition.
func (c *Controller) SetEmotion(name string, duration time.Duration) error {
	if err := c.engine.SetEmotionByName(name, duration); err != nil {
		return err
	}
	c.record(HistoryEntry{State: name, At: time.Now()})
	return nil
}

// SetEmotionFromSentiment maps score+context through the fixed threshold
// table and transitions to the result.
func (c *Controller) SetEmotionFromSentiment(score float32, ctx emotion.Context, duration time.Duration) string {
	state := emotion.FromSentiment(score, ctx)
	c.engine.SetEmotion(state, duration)
	c.record(HistoryEntry{State: state.Name, Sentiment: score, Context: ctx, At: time.Now()})
	return state.Name
}

// Update advances the emotion clock; call once before each frame capture.
func (c *Controller) Update(dt time.Duration) {
	c.engine.Update(dt)
}

// BlendedMorphWeights composes lip-sync and emotion into the final vector:
//
//	final[k] = clamp01(lipSyncWeight*phoneme[k] + emotionWeight*phase*emotion[k])
func (c *Controller) BlendedMorphWeights(phonemeWeights blend.Weights) blend.Weights {
	c.mu.RLock()
	lip := c.lipSyncWeight
	emo := c.emotionWeight * phaseMultipliers[c.phase]
	c.mu.RUnlock()

	emotionWeights := c.engine.CurrentMorphWeights()

	var out blend.Weights
	for i := range out {
		out[i] = blend.Clamp01(lip*phonemeWeights[i] + emo*emotionWeights[i])
	}
	return out
}

// BlendedMorphWeightsArray is the ordered-slice form consumed by renderers.
func (c *Controller) BlendedMorphWeightsArray(phonemeWeights blend.Weights) []float32 {
	w := c.BlendedMorphWeights(phonemeWeights)
	return w.ToSlice()
}

func (c *Controller) record(entry HistoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, entry)
	if len(c.history) > historyCapacity {
		c.history = c.history[len(c.history)-historyCapacity:]
	}
}

// History returns a copy of the recent emotion changes, oldest first.
func (c *Controller) History() []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}
