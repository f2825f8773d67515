package emotion

import "github.com/normanking/avatarstream/internal/blend"

// State is an immutable named emotional state. The built-in states are
// created once at init and never mutated.
type State struct {
	Name          string
	Intensity     float32
	Weights       blend.Weights
	IdleVariation float32
}

const (
	NameNeutral      = "neutral"
	NameProfessional = "professional"
	NameHappy        = "happy"
	NameSurprised    = "surprised"
	NameConfused     = "confused"
	NameSad          = "sad"
	NameThoughtful   = "thoughtful"
)

var (
	Neutral = State{
		Name:          NameNeutral,
		Intensity:     0.5,
		Weights:       blend.NewWeights(),
		IdleVariation: 0.3,
	}

	Professional = func() State {
		w := blend.NewWeights()
		w.Set(blend.MouthSmileLeft, 0.2)
		w.Set(blend.MouthSmileRight, 0.2)
		w.Set(blend.BrowInnerUp, 0.05)
		w.Set(blend.JawOpen, 0.1)
		return State{Name: NameProfessional, Intensity: 0.6, Weights: w, IdleVariation: 0.2}
	}()

	Happy = func() State {
		w := blend.NewWeights()
		w.Set(blend.MouthSmileLeft, 0.6)
		w.Set(blend.MouthSmileRight, 0.6)
		w.Set(blend.CheekSquintLeft, 0.3)
		w.Set(blend.CheekSquintRight, 0.3)
		w.Set(blend.EyeSquintLeft, 0.15)
		w.Set(blend.EyeSquintRight, 0.15)
		return State{Name: NameHappy, Intensity: 0.8, Weights: w, IdleVariation: 0.4}
	}()

	Surprised = func() State {
		w := blend.NewWeights()
		w.Set(blend.BrowInnerUp, 0.4)
		w.Set(blend.BrowOuterUpLeft, 0.35)
		w.Set(blend.BrowOuterUpRight, 0.35)
		w.Set(blend.EyeWideLeft, 0.45)
		w.Set(blend.EyeWideRight, 0.45)
		w.Set(blend.JawOpen, 0.3)
		return State{Name: NameSurprised, Intensity: 0.9, Weights: w, IdleVariation: 0.2}
	}()

	Confused = func() State {
		w := blend.NewWeights()
		w.Set(blend.BrowDownLeft, 0.3)
		w.Set(blend.BrowInnerUp, 0.25)
		w.Set(blend.EyeSquintLeft, 0.2)
		w.Set(blend.MouthPressLeft, 0.2)
		w.Set(blend.MouthLeft, 0.15)
		return State{Name: NameConfused, Intensity: 0.7, Weights: w, IdleVariation: 0.3}
	}()

	Sad = func() State {
		w := blend.NewWeights()
		w.Set(blend.BrowInnerUp, 0.4)
		w.Set(blend.BrowDownLeft, 0.1)
		w.Set(blend.BrowDownRight, 0.1)
		w.Set(blend.MouthFrownLeft, 0.3)
		w.Set(blend.MouthFrownRight, 0.3)
		w.Set(blend.EyeLookDownLeft, 0.2)
		w.Set(blend.EyeLookDownRight, 0.2)
		return State{Name: NameSad, Intensity: 0.6, Weights: w, IdleVariation: 0.15}
	}()

	Thoughtful = func() State {
		w := blend.NewWeights()
		w.Set(blend.BrowInnerUp, 0.25)
		w.Set(blend.EyeLookUpLeft, 0.3)
		w.Set(blend.EyeLookUpRight, 0.3)
		w.Set(blend.MouthPressLeft, 0.15)
		w.Set(blend.MouthPressRight, 0.15)
		w.Set(blend.MouthPucker, 0.1)
		return State{Name: NameThoughtful, Intensity: 0.5, Weights: w, IdleVariation: 0.25}
	}()
)

var registry = map[string]State{
	NameNeutral:      Neutral,
	NameProfessional: Professional,
	NameHappy:        Happy,
	NameSurprised:    Surprised,
	NameConfused:     Confused,
	NameSad:          Sad,
	NameThoughtful:   Thoughtful,
}

// StateByName looks up a built-in state. The second return is false for
// names outside the fixed set.
func StateByName(name string) (State, bool) {
	s, ok := registry[name]
	return s, ok
}

// States returns the full set of built-in states.
func States() []State {
	return []State{Neutral, Professional, Happy, Surprised, Confused, Sad, Thoughtful}
}
