package model

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// BuiltinKey selects the procedural head instead of an asset on disk.
const BuiltinKey = "builtin"

const (
	sphereSegments = 32
	sphereRings    = 16
)

type morphRegion struct {
	name      string
	center    mgl32.Vec3
	radius    float32
	direction mgl32.Vec3
	strength  float32
}

// The face looks down +Z. Regions place the speech and expression targets
// on a unit-sphere head; displacement falls off with distance from the
// region center.
var builtinRegions = []morphRegion{
	{"jawOpen", mgl32.Vec3{0, -0.55, 0.8}, 0.55, mgl32.Vec3{0, -1, 0.1}, 0.35},
	{"mouthClose", mgl32.Vec3{0, -0.45, 0.88}, 0.3, mgl32.Vec3{0, 0.4, -0.1}, 0.2},
	{"mouthFunnel", mgl32.Vec3{0, -0.45, 0.88}, 0.3, mgl32.Vec3{0, 0, 1}, 0.25},
	{"mouthPucker", mgl32.Vec3{0, -0.45, 0.88}, 0.25, mgl32.Vec3{0, 0, 1}, 0.3},
	{"mouthSmileLeft", mgl32.Vec3{-0.3, -0.42, 0.82}, 0.22, mgl32.Vec3{-0.4, 1, 0}, 0.18},
	{"mouthSmileRight", mgl32.Vec3{0.3, -0.42, 0.82}, 0.22, mgl32.Vec3{0.4, 1, 0}, 0.18},
	{"mouthFrownLeft", mgl32.Vec3{-0.3, -0.42, 0.82}, 0.22, mgl32.Vec3{-0.2, -1, 0}, 0.15},
	{"mouthFrownRight", mgl32.Vec3{0.3, -0.42, 0.82}, 0.22, mgl32.Vec3{0.2, -1, 0}, 0.15},
	{"mouthStretchLeft", mgl32.Vec3{-0.3, -0.45, 0.82}, 0.25, mgl32.Vec3{-1, 0, 0}, 0.15},
	{"mouthStretchRight", mgl32.Vec3{0.3, -0.45, 0.82}, 0.25, mgl32.Vec3{1, 0, 0}, 0.15},
	{"mouthPressLeft", mgl32.Vec3{-0.2, -0.45, 0.86}, 0.2, mgl32.Vec3{0, -0.3, -0.4}, 0.1},
	{"mouthPressRight", mgl32.Vec3{0.2, -0.45, 0.86}, 0.2, mgl32.Vec3{0, -0.3, -0.4}, 0.1},
	{"mouthLowerDownLeft", mgl32.Vec3{-0.15, -0.55, 0.84}, 0.2, mgl32.Vec3{0, -1, 0}, 0.12},
	{"mouthLowerDownRight", mgl32.Vec3{0.15, -0.55, 0.84}, 0.2, mgl32.Vec3{0, -1, 0}, 0.12},
	{"mouthUpperUpLeft", mgl32.Vec3{-0.15, -0.35, 0.88}, 0.2, mgl32.Vec3{0, 1, 0}, 0.12},
	{"mouthUpperUpRight", mgl32.Vec3{0.15, -0.35, 0.88}, 0.2, mgl32.Vec3{0, 1, 0}, 0.12},
	{"tongueOut", mgl32.Vec3{0, -0.5, 0.9}, 0.18, mgl32.Vec3{0, -0.2, 1}, 0.2},
	{"browInnerUp", mgl32.Vec3{0, 0.35, 0.9}, 0.25, mgl32.Vec3{0, 1, 0}, 0.15},
	{"browDownLeft", mgl32.Vec3{-0.3, 0.35, 0.85}, 0.22, mgl32.Vec3{0, -1, 0}, 0.12},
	{"browDownRight", mgl32.Vec3{0.3, 0.35, 0.85}, 0.22, mgl32.Vec3{0, -1, 0}, 0.12},
	{"browOuterUpLeft", mgl32.Vec3{-0.45, 0.35, 0.78}, 0.2, mgl32.Vec3{0, 1, 0}, 0.12},
	{"browOuterUpRight", mgl32.Vec3{0.45, 0.35, 0.78}, 0.2, mgl32.Vec3{0, 1, 0}, 0.12},
	{"eyeBlinkLeft", mgl32.Vec3{-0.3, 0.2, 0.88}, 0.18, mgl32.Vec3{0, -1, 0}, 0.1},
	{"eyeBlinkRight", mgl32.Vec3{0.3, 0.2, 0.88}, 0.18, mgl32.Vec3{0, -1, 0}, 0.1},
	{"eyeWideLeft", mgl32.Vec3{-0.3, 0.2, 0.88}, 0.18, mgl32.Vec3{0, 1, 0}, 0.08},
	{"eyeWideRight", mgl32.Vec3{0.3, 0.2, 0.88}, 0.18, mgl32.Vec3{0, 1, 0}, 0.08},
	{"eyeSquintLeft", mgl32.Vec3{-0.3, 0.15, 0.88}, 0.18, mgl32.Vec3{0, 0.5, -0.3}, 0.08},
	{"eyeSquintRight", mgl32.Vec3{0.3, 0.15, 0.88}, 0.18, mgl32.Vec3{0, 0.5, -0.3}, 0.08},
	{"cheekSquintLeft", mgl32.Vec3{-0.45, -0.1, 0.8}, 0.25, mgl32.Vec3{0, 0.6, 0.2}, 0.1},
	{"cheekSquintRight", mgl32.Vec3{0.45, -0.1, 0.8}, 0.25, mgl32.Vec3{0, 0.6, 0.2}, 0.1},
	{"cheekPuff", mgl32.Vec3{0, -0.2, 0.8}, 0.4, mgl32.Vec3{0, 0, 1}, 0.15},
	{"noseSneerLeft", mgl32.Vec3{-0.12, 0.0, 0.95}, 0.15, mgl32.Vec3{0, 1, 0}, 0.08},
	{"noseSneerRight", mgl32.Vec3{0.12, 0.0, 0.95}, 0.15, mgl32.Vec3{0, 1, 0}, 0.08},
}

// BuiltinHead builds the procedural morphable head used when no asset is
// configured. It is fully deterministic.
func BuiltinHead() *Model {
	positions, normals, indices := sphereMesh(sphereSegments, sphereRings)

	m := &Model{
		Key:       BuiltinKey,
		Positions: positions,
		Normals:   normals,
		Indices:   indices,
	}

	for _, region := range builtinRegions {
		deltas := make([]mgl32.Vec3, len(positions))
		dir := region.direction.Normalize()
		for i, p := range positions {
			d := p.Sub(region.center).Len()
			if d >= region.radius {
				continue
			}
			falloff := 1 - d/region.radius
			deltas[i] = dir.Mul(region.strength * falloff * falloff)
		}
		m.Targets = append(m.Targets, MorphTarget{Name: region.name, PositionDeltas: deltas})
	}

	m.caps = Capabilities{Supports3D: true, SupportsMorphTargets: true}
	m.buildTargetMapping()
	return m
}

func sphereMesh(segments, rings int) ([]mgl32.Vec3, []mgl32.Vec3, []uint32) {
	var positions, normals []mgl32.Vec3

	for ring := 0; ring <= rings; ring++ {
		phi := math.Pi * float64(ring) / float64(rings)
		for seg := 0; seg <= segments; seg++ {
			theta := 2 * math.Pi * float64(seg) / float64(segments)
			p := mgl32.Vec3{
				float32(math.Sin(phi) * math.Sin(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Cos(theta)),
			}
			positions = append(positions, p)
			normals = append(normals, p)
		}
	}

	var indices []uint32
	stride := uint32(segments + 1)
	for ring := uint32(0); ring < uint32(rings); ring++ {
		for seg := uint32(0); seg < uint32(segments); seg++ {
			a := ring*stride + seg
			b := a + stride
			indices = append(indices, a, b, a+1, a+1, b, b+1)
		}
	}

	return positions, normals, indices
}
