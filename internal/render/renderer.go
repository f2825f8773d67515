// Package render turns a model instance plus a weight vector into pixels.
// Rendering is pure: identical (model, time, weights) inputs produce
// byte-identical frames, which the cache layer depends on.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/normanking/avatarstream/internal/model"
)

// Frame is one rendered image. Pixels are RGBA, row-major.
type Frame struct {
	Index  int
	Time   float64
	Width  int
	Height int
	Pixels []byte
}

// EncodePNG serializes the frame. The stdlib encoder is deterministic for
// identical pixel data.
func (f *Frame) EncodePNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pixels)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Capabilities describe a renderer variant. Callers depend only on
// RenderFrame and Capabilities, never on the concrete type.
type Capabilities struct {
	Name    string
	ThreeD  bool
	Shading bool
}

type Renderer interface {
	RenderFrame(inst *model.Instance, t float64, weights []float32) (*Frame, error)
	Capabilities() Capabilities
}

// Config selects frame geometry shared by all variants.
type Config struct {
	Width  int
	Height int
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	return c
}

// New selects a renderer for the model's capabilities: the mesh
// rasterizer when the asset supports 3D, the flat painter otherwise.
func New(cfg Config, caps model.Capabilities) Renderer {
	if caps.Supports3D {
		return NewMeshRenderer(cfg)
	}
	return NewFlatRenderer(cfg)
}

// RenderError is a per-frame failure; the frame is skipped or replaced,
// never the whole session.
type RenderError struct {
	FrameIndex int
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render frame %d: %v", e.FrameIndex, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
