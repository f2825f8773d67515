// Package model loads and caches morph-capable avatar meshes. An asset is
// parsed once per key; sessions work on lightweight clones that carry
// their own influence arrays.
package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/avatarstream/internal/blend"
)

// LoadError is fatal for any session or job requesting the model. There is
// no silent default avatar.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Capabilities describe what a parsed model supports; renderers are
// selected against these flags rather than concrete mesh types.
type Capabilities struct {
	Supports3D           bool
	SupportsMorphTargets bool
}

// MorphTarget is one named deformation: per-vertex position deltas applied
// proportionally to its influence.
type MorphTarget struct {
	Name           string
	PositionDeltas []mgl32.Vec3
}

// Model is the shared, immutable parse result. Per-session mutable state
// lives on Instance.
type Model struct {
	Key       string
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
	Targets   []MorphTarget

	// targetMapping[t] is the index into Targets for vocabulary target t,
	// or -1 when the rig lacks it.
	targetMapping [blend.TargetCount]int

	caps Capabilities
}

func (m *Model) TriangleCount() int {
	return len(m.Indices) / 3
}

func (m *Model) MorphTargetNames() []string {
	names := make([]string, len(m.Targets))
	for i, t := range m.Targets {
		names[i] = t.Name
	}
	return names
}

func (m *Model) Capabilities() Capabilities {
	return m.caps
}

func (m *Model) buildTargetMapping() {
	for i := range m.targetMapping {
		m.targetMapping[i] = -1
	}
	for ti, target := range m.Targets {
		if idx := blend.TargetByName(target.Name); idx >= 0 {
			m.targetMapping[idx] = ti
		}
	}
}

// Clone returns a cheap per-session instance; the mesh data is shared,
// the influence array is not.
func (m *Model) Clone() *Instance {
	return &Instance{
		model:      m,
		influences: make([]float32, len(m.Targets)),
	}
}

// Instance is one session's view of a model.
type Instance struct {
	model      *Model
	influences []float32
}

func (in *Instance) Model() *Model {
	return in.model
}

// ApplyWeights writes a vocabulary-ordered weight slice into the model's
// influence array, skipping targets the rig does not have.
func (in *Instance) ApplyWeights(weights []float32) {
	for t, ti := range in.model.targetMapping {
		if ti < 0 {
			continue
		}
		if t < len(weights) {
			in.influences[ti] = blend.Clamp01(weights[t])
		}
	}
}

func (in *Instance) Influences() []float32 {
	out := make([]float32, len(in.influences))
	copy(out, in.influences)
	return out
}

// MorphedPositions returns base positions displaced by every active morph
// target. Pure with respect to (mesh, influences).
func (in *Instance) MorphedPositions() []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(in.model.Positions))
	copy(out, in.model.Positions)

	for ti, influence := range in.influences {
		if influence <= 0 {
			continue
		}
		deltas := in.model.Targets[ti].PositionDeltas
		for vi := range out {
			if vi < len(deltas) {
				out[vi] = out[vi].Add(deltas[vi].Mul(influence))
			}
		}
	}
	return out
}
