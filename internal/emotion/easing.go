package emotion

import "math"

// Easing maps linear transition progress to perceptual progress.
// Every function is pure and maps [0,1] onto [0,1] with f(0)=0 and f(1)=1.
type Easing func(t float32) float32

func Linear(t float32) float32 {
	return t
}

func EaseIn(t float32) float32 {
	return t * t * t
}

func EaseOut(t float32) float32 {
	return 1 - float32(math.Pow(float64(1-t), 3))
}

func EaseInOut(t float32) float32 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - float32(math.Pow(float64(-2*t+2), 3))/2
}

func Smoothstep(t float32) float32 {
	return t * t * (3 - 2*t)
}

var easings = map[string]Easing{
	"linear":     Linear,
	"easeIn":     EaseIn,
	"easeOut":    EaseOut,
	"easeInOut":  EaseInOut,
	"smoothstep": Smoothstep,
}

// EasingByName resolves a configured easing name, defaulting to EaseInOut.
func EasingByName(name string) Easing {
	if e, ok := easings[name]; ok {
		return e
	}
	return EaseInOut
}
