package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarstream/internal/blend"
	"github.com/normanking/avatarstream/internal/model"
)

func testWeights(jaw float32) []float32 {
	w := make([]float32, blend.TargetCount)
	w[blend.JawOpen] = jaw
	return w
}

func TestMeshRendererDeterministic(t *testing.T) {
	head := model.BuiltinHead()
	cfg := Config{Width: 128, Height: 96}

	// Repeated calls on one renderer.
	r := NewMeshRenderer(cfg)
	inst := head.Clone()
	first, err := r.RenderFrame(inst, 0.5, testWeights(0.6))
	require.NoError(t, err)
	second, err := r.RenderFrame(inst, 0.5, testWeights(0.6))
	require.NoError(t, err)
	assert.Equal(t, first.Pixels, second.Pixels)

	// Independent renderer and instance, as a pool worker would hold.
	other, err := NewMeshRenderer(cfg).RenderFrame(head.Clone(), 0.5, testWeights(0.6))
	require.NoError(t, err)
	assert.Equal(t, first.Pixels, other.Pixels)
}

func TestMeshRendererWeightsChangeOutput(t *testing.T) {
	head := model.BuiltinHead()
	r := NewMeshRenderer(Config{Width: 128, Height: 96})

	closed, err := r.RenderFrame(head.Clone(), 0, testWeights(0))
	require.NoError(t, err)
	open, err := r.RenderFrame(head.Clone(), 0, testWeights(1))
	require.NoError(t, err)

	assert.NotEqual(t, closed.Pixels, open.Pixels)
}

func TestFlatRendererDeterministic(t *testing.T) {
	head := model.BuiltinHead()
	r := NewFlatRenderer(Config{Width: 128, Height: 96})

	a, err := r.RenderFrame(head.Clone(), 1.0, testWeights(0.4))
	require.NoError(t, err)
	b, err := r.RenderFrame(head.Clone(), 1.0, testWeights(0.4))
	require.NoError(t, err)

	assert.Equal(t, a.Pixels, b.Pixels)
}

func TestFlatRendererRejectsShortVector(t *testing.T) {
	r := NewFlatRenderer(Config{Width: 64, Height: 64})
	_, err := r.RenderFrame(nil, 0, []float32{0.5})
	assert.Error(t, err)
}

func TestRendererSelection(t *testing.T) {
	threeD := New(Config{}, model.Capabilities{Supports3D: true})
	assert.True(t, threeD.Capabilities().ThreeD)

	flat := New(Config{}, model.Capabilities{Supports3D: false})
	assert.False(t, flat.Capabilities().ThreeD)
}

func TestEncodePNGDeterministic(t *testing.T) {
	head := model.BuiltinHead()
	r := NewFlatRenderer(Config{Width: 64, Height: 48})

	frame, err := r.RenderFrame(head.Clone(), 0, testWeights(0.2))
	require.NoError(t, err)

	a, err := frame.EncodePNG()
	require.NoError(t, err)
	b, err := frame.EncodePNG()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}
