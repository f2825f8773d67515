package render

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/avatarstream/internal/model"
)

// MeshRenderer rasterizes the morphed mesh on the CPU: perspective
// projection, depth buffer, flat Lambert shading with a fixed light.
// It keeps scratch buffers between frames, so one renderer must not be
// shared across goroutines; the worker pool gives each worker its own.
type MeshRenderer struct {
	cfg Config

	viewProj mgl32.Mat4
	lightDir mgl32.Vec3

	depth  []float32
	pixels []byte
}

func NewMeshRenderer(cfg Config) *MeshRenderer {
	cfg = cfg.withDefaults()

	aspect := float32(cfg.Width) / float32(cfg.Height)
	proj := mgl32.Perspective(mgl32.DegToRad(40), aspect, 0.1, 10)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 2.8}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})

	return &MeshRenderer{
		cfg:      cfg,
		viewProj: proj.Mul4(view),
		lightDir: mgl32.Vec3{0.3, 0.5, 1}.Normalize(),
		depth:    make([]float32, cfg.Width*cfg.Height),
		pixels:   make([]byte, cfg.Width*cfg.Height*4),
	}
}

func (r *MeshRenderer) Capabilities() Capabilities {
	return Capabilities{Name: "mesh", ThreeD: true, Shading: true}
}

var (
	backgroundColor = [3]byte{24, 26, 32}
	skinColor       = mgl32.Vec3{0.87, 0.72, 0.62}
)

func (r *MeshRenderer) RenderFrame(inst *model.Instance, t float64, weights []float32) (*Frame, error) {
	if inst == nil {
		return nil, fmt.Errorf("nil model instance")
	}

	inst.ApplyWeights(weights)
	positions := inst.MorphedPositions()
	indices := inst.Model().Indices

	r.clear()

	screen := make([]mgl32.Vec3, len(positions))
	for i, p := range positions {
		screen[i] = r.project(p)
	}

	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := screen[indices[i]], screen[indices[i+1]], screen[indices[i+2]]

		wa := positions[indices[i]]
		wb := positions[indices[i+1]]
		wc := positions[indices[i+2]]
		normal := wb.Sub(wa).Cross(wc.Sub(wa))
		if normal.Len() == 0 {
			continue
		}
		normal = normal.Normalize()
		// Orient toward the camera; the depth buffer handles occlusion,
		// so winding order does not matter.
		if normal.Z() < 0 {
			normal = normal.Mul(-1)
		}

		lambert := normal.Dot(r.lightDir)
		if lambert < 0 {
			lambert = 0
		}
		shade := 0.25 + 0.75*lambert

		r.fillTriangle(a, b, c, shade)
	}

	out := make([]byte, len(r.pixels))
	copy(out, r.pixels)

	return &Frame{
		Time:   t,
		Width:  r.cfg.Width,
		Height: r.cfg.Height,
		Pixels: out,
	}, nil
}

func (r *MeshRenderer) clear() {
	for i := 0; i < len(r.pixels); i += 4 {
		r.pixels[i] = backgroundColor[0]
		r.pixels[i+1] = backgroundColor[1]
		r.pixels[i+2] = backgroundColor[2]
		r.pixels[i+3] = 255
	}
	for i := range r.depth {
		r.depth[i] = math.MaxFloat32
	}
}

// project maps a world position to screen space; Z is kept for the depth
// test.
func (r *MeshRenderer) project(p mgl32.Vec3) mgl32.Vec3 {
	clip := r.viewProj.Mul4x1(p.Vec4(1))
	w := clip.W()
	if w == 0 {
		w = 1e-6
	}
	ndc := mgl32.Vec3{clip.X() / w, clip.Y() / w, clip.Z() / w}
	return mgl32.Vec3{
		(ndc.X() + 1) * 0.5 * float32(r.cfg.Width),
		(1 - ndc.Y()) * 0.5 * float32(r.cfg.Height),
		ndc.Z(),
	}
}

func (r *MeshRenderer) fillTriangle(a, b, c mgl32.Vec3, shade float32) {
	minX := int(math.Floor(float64(min3(a.X(), b.X(), c.X()))))
	maxX := int(math.Ceil(float64(max3(a.X(), b.X(), c.X()))))
	minY := int(math.Floor(float64(min3(a.Y(), b.Y(), c.Y()))))
	maxY := int(math.Ceil(float64(max3(a.Y(), b.Y(), c.Y()))))

	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX >= r.cfg.Width {
		maxX = r.cfg.Width - 1
	}
	if maxY >= r.cfg.Height {
		maxY = r.cfg.Height - 1
	}

	area := edge(a, b, c)
	if area == 0 {
		return
	}

	red := byte(clampColor(skinColor.X() * shade * 255))
	green := byte(clampColor(skinColor.Y() * shade * 255))
	blue := byte(clampColor(skinColor.Z() * shade * 255))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, 0}

			w0 := edge(b, c, p) / area
			w1 := edge(c, a, p) / area
			w2 := edge(a, b, p) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			z := w0*a.Z() + w1*b.Z() + w2*c.Z()
			idx := y*r.cfg.Width + x
			if z >= r.depth[idx] {
				continue
			}
			r.depth[idx] = z

			pi := idx * 4
			r.pixels[pi] = red
			r.pixels[pi+1] = green
			r.pixels[pi+2] = blue
			r.pixels[pi+3] = 255
		}
	}
}

func edge(a, b, p mgl32.Vec3) float32 {
	return (b.X()-a.X())*(p.Y()-a.Y()) - (b.Y()-a.Y())*(p.X()-a.X())
}

func min3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func clampColor(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
