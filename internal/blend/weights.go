// Package blend defines the morph-target vocabulary and the weight vector
// every animation stage reads and writes. Weights are always clamped to [0,1].
package blend

type Target int

const (
	BrowDownLeft Target = iota
	BrowDownRight
	BrowInnerUp
	BrowOuterUpLeft
	BrowOuterUpRight
	CheekPuff
	CheekSquintLeft
	CheekSquintRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookInLeft
	EyeLookInRight
	EyeLookOutLeft
	EyeLookOutRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeSquintLeft
	EyeSquintRight
	EyeWideLeft
	EyeWideRight
	JawForward
	JawLeft
	JawOpen
	JawRight
	MouthClose
	MouthDimpleLeft
	MouthDimpleRight
	MouthFrownLeft
	MouthFrownRight
	MouthFunnel
	MouthLeft
	MouthLowerDownLeft
	MouthLowerDownRight
	MouthPressLeft
	MouthPressRight
	MouthPucker
	MouthRight
	MouthRollLower
	MouthRollUpper
	MouthShrugLower
	MouthShrugUpper
	MouthSmileLeft
	MouthSmileRight
	MouthStretchLeft
	MouthStretchRight
	MouthUpperUpLeft
	MouthUpperUpRight
	NoseSneerLeft
	NoseSneerRight
	TongueOut
	TargetCount
)

var TargetNames = [TargetCount]string{
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeLookOutRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"jawRight",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthRollUpper",
	"mouthShrugLower",
	"mouthShrugUpper",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretchLeft",
	"mouthStretchRight",
	"mouthUpperUpLeft",
	"mouthUpperUpRight",
	"noseSneerLeft",
	"noseSneerRight",
	"tongueOut",
}

var targetIndex = func() map[string]Target {
	m := make(map[string]Target, TargetCount)
	for i, n := range TargetNames {
		m[n] = Target(i)
	}
	return m
}()

// TargetByName returns the index for a morph-target name, or -1 if the name
// is not part of the vocabulary.
func TargetByName(name string) Target {
	if t, ok := targetIndex[name]; ok {
		return t
	}
	return -1
}

// Weights is one full morph-weight vector. The zero value is a neutral face.
type Weights [TargetCount]float32

func NewWeights() Weights {
	return Weights{}
}

func (w *Weights) Set(t Target, value float32) {
	w[t] = Clamp01(value)
}

func (w Weights) Get(t Target) float32 {
	return w[t]
}

func (w *Weights) Reset() {
	for i := range w {
		w[i] = 0
	}
}

func (w *Weights) Lerp(target *Weights, t float32) Weights {
	if t <= 0 {
		return *w
	}
	if t >= 1 {
		return *target
	}

	var result Weights
	for i := range w {
		result[i] = w[i] + (target[i]-w[i])*t
	}
	return result
}

func (w *Weights) Add(other *Weights) Weights {
	var result Weights
	for i := range w {
		result[i] = Clamp01(w[i] + other[i])
	}
	return result
}

func (w *Weights) Scale(factor float32) Weights {
	var result Weights
	for i := range w {
		result[i] = Clamp01(w[i] * factor)
	}
	return result
}

// Max keeps the larger of the two values per target. Used for overrides
// (blink) that must not be washed out by an ongoing blend.
func (w *Weights) Max(other *Weights) Weights {
	var result Weights
	for i := range w {
		if other[i] > w[i] {
			result[i] = other[i]
		} else {
			result[i] = w[i]
		}
	}
	return result
}

func (w Weights) ToSlice() []float32 {
	out := make([]float32, TargetCount)
	copy(out, w[:])
	return out
}

// ToMap exposes the vector in the name-keyed form used on the wire.
func (w Weights) ToMap() map[string]float32 {
	m := make(map[string]float32, TargetCount)
	for i, n := range TargetNames {
		m[n] = w[i]
	}
	return m
}

// FromMap builds a vector from a name-keyed map, ignoring unknown names.
func FromMap(m map[string]float32) Weights {
	var w Weights
	for name, v := range m {
		if t := TargetByName(name); t >= 0 {
			w.Set(t, v)
		}
	}
	return w
}

func Clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
