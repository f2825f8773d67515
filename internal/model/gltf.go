package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// loadGLTF parses the first primitive of the first mesh. The pipeline only
// needs positions, indices, and named morph-position deltas; materials and
// textures belong to the rasterization backend.
func loadGLTF(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("no meshes in file")
	}
	gltfMesh := doc.Meshes[0]
	if len(gltfMesh.Primitives) == 0 {
		return nil, fmt.Errorf("no primitives in mesh")
	}
	prim := gltfMesh.Primitives[0]

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("primitive has no positions")
	}
	rawPos, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	m := &Model{
		Key:       path,
		Positions: toVec3(rawPos),
	}

	if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if rawNorm, err := modeler.ReadNormal(doc, doc.Accessors[normIdx], nil); err == nil {
			m.Normals = toVec3(rawNorm)
		}
	}
	if len(m.Normals) != len(m.Positions) {
		m.Normals = make([]mgl32.Vec3, len(m.Positions))
	}

	if prim.Indices != nil {
		indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
		m.Indices = indices
	} else {
		m.Indices = make([]uint32, len(m.Positions))
		for i := range m.Indices {
			m.Indices[i] = uint32(i)
		}
	}

	names := targetNames(gltfMesh.Extras, len(prim.Targets))
	for ti, target := range prim.Targets {
		deltaIdx, ok := target[gltf.POSITION]
		if !ok {
			continue
		}
		rawDeltas, err := modeler.ReadPosition(doc, doc.Accessors[deltaIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("read morph target %d: %w", ti, err)
		}
		m.Targets = append(m.Targets, MorphTarget{
			Name:           names[ti],
			PositionDeltas: toVec3(rawDeltas),
		})
	}

	m.caps = Capabilities{
		Supports3D:           true,
		SupportsMorphTargets: len(m.Targets) > 0,
	}
	m.buildTargetMapping()
	return m, nil
}

// targetNames pulls the conventional mesh.extras.targetNames list; targets
// without a published name get a positional one.
func targetNames(extras any, count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("target_%d", i)
	}

	extrasMap, ok := extras.(map[string]any)
	if !ok {
		return names
	}
	rawNames, ok := extrasMap["targetNames"].([]any)
	if !ok {
		return names
	}
	for i, raw := range rawNames {
		if i >= count {
			break
		}
		if s, ok := raw.(string); ok {
			names[i] = s
		}
	}
	return names
}

func toVec3(raw [][3]float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(raw))
	for i, v := range raw {
		out[i] = mgl32.Vec3{v[0], v[1], v[2]}
	}
	return out
}
