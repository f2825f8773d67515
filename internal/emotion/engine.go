package emotion

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/normanking/avatarstream/internal/blend"
)

const (
	DefaultTransitionDuration = 500 * time.Millisecond

	// Blink timing: a full open-close-open profile every cycle.
	blinkCycleMs    = 3000.0
	blinkDurationMs = 150.0

	idleNoiseAmplitude = 0.03
	idleNoiseRate      = 0.5
)

// ErrUnknownState is returned when a caller names an emotion outside the
// built-in set. This is a caller bug, not a runtime condition to absorb.
type ErrUnknownState struct {
	Name string
}

func (e *ErrUnknownState) Error() string {
	return fmt.Sprintf("unknown emotion state %q", e.Name)
}

// Transition is an in-flight blend between two states. It collapses to the
// target once progress reaches 1.
type Transition struct {
	From     State
	To       State
	fromBase blend.Weights // blended weights captured when the transition began
	startMs  float64
	durMs    float64
	easing   Easing
}

// Engine is the emotion state machine. Time only advances through Update;
// the engine keeps its own clock so identical Update sequences produce
// identical output.
type Engine struct {
	mu sync.RWMutex

	current    State
	transition *Transition

	clockMs float64

	idleEnabled  bool
	blinkEnabled bool
	defaultEase  Easing
}

func NewEngine() *Engine {
	return &Engine{
		current:      Neutral,
		idleEnabled:  true,
		blinkEnabled: true,
		defaultEase:  EaseInOut,
	}
}

// SetIdleEnabled turns off blink and micro-noise for deterministic runs.
func (e *Engine) SetIdleEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idleEnabled = enabled
	e.blinkEnabled = enabled
}

func (e *Engine) SetDefaultEasing(ease Easing) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultEase = ease
}

// SetEmotion starts a transition from the current blended state to target.
// A no-op when the engine already rests at target.
func (e *Engine) SetEmotion(target State, duration time.Duration) {
	e.SetEmotionEased(target, duration, nil)
}

func (e *Engine) SetEmotionEased(target State, duration time.Duration, ease Easing) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transition == nil && e.current.Name == target.Name {
		return
	}
	if e.transition != nil && e.transition.To.Name == target.Name {
		return
	}

	if ease == nil {
		ease = e.defaultEase
	}
	if duration <= 0 {
		duration = DefaultTransitionDuration
	}

	e.transition = &Transition{
		From:     e.current,
		To:       target,
		fromBase: e.blendedBaseLocked(),
		startMs:  e.clockMs,
		durMs:    float64(duration) / float64(time.Millisecond),
		easing:   ease,
	}
}

// SetEmotionByName resolves the name against the built-in set and rejects
// unknown names instead of silently defaulting.
func (e *Engine) SetEmotionByName(name string, duration time.Duration) error {
	state, ok := StateByName(name)
	if !ok {
		return &ErrUnknownState{Name: name}
	}
	e.SetEmotion(state, duration)
	return nil
}

// Update advances the engine clock. It must be called before each frame
// capture so the blended state reflects "now".
func (e *Engine) Update(dt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clockMs += float64(dt) / float64(time.Millisecond)

	if e.transition != nil && e.progressLocked() >= 1 {
		e.current = e.transition.To
		e.transition = nil
	}
}

// Current returns the resting or target state name.
func (e *Engine) Current() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.transition != nil {
		return e.transition.To
	}
	return e.current
}

// TransitionProgress reports eased-input progress in [0,1]; 1 when resting.
func (e *Engine) TransitionProgress() float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.transition == nil {
		return 1
	}
	return e.progressLocked()
}

// CurrentMorphWeights returns the blended weight vector for the current
// clock: transition lerp, idle noise scaled by the blended idle variation,
// and the blink override. All values are clamped to [0,1].
func (e *Engine) CurrentMorphWeights() blend.Weights {
	e.mu.RLock()
	defer e.mu.RUnlock()

	weights := e.blendedBaseLocked()

	if e.idleEnabled {
		e.applyIdleNoise(&weights, e.blendedIdleVariationLocked())
	}
	if e.blinkEnabled {
		e.applyBlink(&weights)
	}

	return weights
}

// BlendedIntensity returns the emotion intensity for the current clock.
func (e *Engine) BlendedIntensity() float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.transition == nil {
		return e.current.Intensity
	}
	p := e.transition.easing(e.progressLocked())
	from := e.transition.From.Intensity
	return from + (e.transition.To.Intensity-from)*p
}

func (e *Engine) progressLocked() float32 {
	tr := e.transition
	if tr.durMs <= 0 {
		return 1
	}
	p := float32((e.clockMs - tr.startMs) / tr.durMs)
	return blend.Clamp01(p)
}

func (e *Engine) blendedBaseLocked() blend.Weights {
	if e.transition == nil {
		return e.current.Weights
	}
	p := e.transition.easing(e.progressLocked())
	return e.transition.fromBase.Lerp(&e.transition.To.Weights, p)
}

func (e *Engine) blendedIdleVariationLocked() float32 {
	if e.transition == nil {
		return e.current.IdleVariation
	}
	p := e.transition.easing(e.progressLocked())
	from := e.transition.From.IdleVariation
	return from + (e.transition.To.IdleVariation-from)*p
}

// applyIdleNoise layers slow sines per target group. Offsets are fixed so
// two engines fed the same Update sequence stay in lockstep.
func (e *Engine) applyIdleNoise(w *blend.Weights, variation float32) {
	if variation <= 0 {
		return
	}
	t := float32(e.clockMs / 1000.0)
	amp := idleNoiseAmplitude * variation

	brow := layeredNoise(t*idleNoiseRate, 13.7)
	w.Set(blend.BrowInnerUp, w.Get(blend.BrowInnerUp)+brow*amp)

	mouth := layeredNoise(t*idleNoiseRate*0.7, 41.3)
	w.Set(blend.MouthPressLeft, w.Get(blend.MouthPressLeft)+mouth*amp*0.5)
	w.Set(blend.MouthPressRight, w.Get(blend.MouthPressRight)+mouth*amp*0.5)

	cheek := layeredNoise(t*idleNoiseRate*0.5, 71.9)
	w.Set(blend.CheekSquintLeft, w.Get(blend.CheekSquintLeft)+cheek*amp*0.3)
	w.Set(blend.CheekSquintRight, w.Get(blend.CheekSquintRight)+cheek*amp*0.3)
}

// applyBlink drives the eyelids through a triangular open-close-open
// profile on a fixed interval. The override takes the max against whatever
// the emotion blend already put on the lids.
func (e *Engine) applyBlink(w *blend.Weights) {
	phase := math.Mod(e.clockMs, blinkCycleMs)
	if phase >= blinkDurationMs {
		return
	}

	p := float32(phase / blinkDurationMs)
	var amount float32
	if p < 0.5 {
		amount = easeOutQuad(p * 2)
	} else {
		amount = easeInQuad((1 - p) * 2)
	}

	if amount > w.Get(blend.EyeBlinkLeft) {
		w.Set(blend.EyeBlinkLeft, amount)
	}
	if amount > w.Get(blend.EyeBlinkRight) {
		w.Set(blend.EyeBlinkRight, amount)
	}
}

// IsBlinking reports whether the current clock sits inside a blink window.
func (e *Engine) IsBlinking() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blinkEnabled && math.Mod(e.clockMs, blinkCycleMs) < blinkDurationMs
}

func layeredNoise(t, offset float32) float32 {
	t += offset
	n1 := float32(math.Sin(float64(t)))
	n2 := float32(math.Sin(float64(t*2.3+1.7))) * 0.5
	n3 := float32(math.Sin(float64(t*4.1+3.2))) * 0.25
	return (n1 + n2 + n3) / 1.75
}

func easeOutQuad(t float32) float32 {
	return t * (2 - t)
}

func easeInQuad(t float32) float32 {
	return t * t
}
