package render

import (
	"fmt"

	"github.com/normanking/avatarstream/internal/blend"
	"github.com/normanking/avatarstream/internal/model"
)

// FlatRenderer is the 2D fallback: it paints a stylized face directly from
// the weight vector, no mesh required. Used for rigs without 3D support
// and as a cheap degrade path.
type FlatRenderer struct {
	cfg Config
}

func NewFlatRenderer(cfg Config) *FlatRenderer {
	return &FlatRenderer{cfg: cfg.withDefaults()}
}

func (r *FlatRenderer) Capabilities() Capabilities {
	return Capabilities{Name: "flat", ThreeD: false, Shading: false}
}

func (r *FlatRenderer) RenderFrame(inst *model.Instance, t float64, weights []float32) (*Frame, error) {
	if len(weights) < int(blend.TargetCount) {
		return nil, fmt.Errorf("weight vector too short: %d", len(weights))
	}

	w, h := r.cfg.Width, r.cfg.Height
	pixels := make([]byte, w*h*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i] = backgroundColor[0]
		pixels[i+1] = backgroundColor[1]
		pixels[i+2] = backgroundColor[2]
		pixels[i+3] = 255
	}

	canvas := &flatCanvas{pixels: pixels, width: w, height: h}

	cx, cy := float64(w)/2, float64(h)/2
	headR := float64(h) * 0.38

	skin := [3]byte{222, 184, 158}
	dark := [3]byte{40, 30, 28}

	canvas.fillEllipse(cx, cy, headR*0.85, headR, skin)

	// Eyes: openness shrinks with the blink weight.
	eyeY := cy - headR*0.25
	eyeDX := headR * 0.35
	eyeR := headR * 0.12
	leftOpen := 1 - float64(weights[blend.EyeBlinkLeft])
	rightOpen := 1 - float64(weights[blend.EyeBlinkRight])
	wide := float64(weights[blend.EyeWideLeft]+weights[blend.EyeWideRight]) / 2
	canvas.fillEllipse(cx-eyeDX, eyeY, eyeR, eyeR*(0.15+0.85*leftOpen)*(1+0.4*wide), dark)
	canvas.fillEllipse(cx+eyeDX, eyeY, eyeR, eyeR*(0.15+0.85*rightOpen)*(1+0.4*wide), dark)

	// Brows rise with browInnerUp, drop with browDown.
	browLift := float64(weights[blend.BrowInnerUp]) * headR * 0.12
	browDropL := float64(weights[blend.BrowDownLeft]) * headR * 0.08
	browDropR := float64(weights[blend.BrowDownRight]) * headR * 0.08
	browY := eyeY - headR*0.22
	canvas.fillEllipse(cx-eyeDX, browY-browLift+browDropL, eyeR*1.3, eyeR*0.25, dark)
	canvas.fillEllipse(cx+eyeDX, browY-browLift+browDropR, eyeR*1.3, eyeR*0.25, dark)

	// Mouth: jawOpen sets the height, stretch/pucker the width, and the
	// smile-frown balance shifts the corners.
	jaw := float64(weights[blend.JawOpen])
	stretch := float64(weights[blend.MouthStretchLeft]+weights[blend.MouthStretchRight]) / 2
	pucker := float64(weights[blend.MouthPucker] + weights[blend.MouthFunnel])
	smile := float64(weights[blend.MouthSmileLeft]+weights[blend.MouthSmileRight]) / 2
	frown := float64(weights[blend.MouthFrownLeft]+weights[blend.MouthFrownRight]) / 2

	mouthY := cy + headR*0.42
	mouthW := headR * (0.3 + 0.25*stretch - 0.15*pucker)
	if mouthW < headR*0.08 {
		mouthW = headR * 0.08
	}
	mouthH := headR * (0.04 + 0.3*jaw)
	canvas.fillEllipse(cx, mouthY, mouthW, mouthH, dark)

	cornerShift := (smile - frown) * headR * 0.1
	cornerR := headR * 0.05
	canvas.fillEllipse(cx-mouthW, mouthY-cornerShift, cornerR, cornerR, dark)
	canvas.fillEllipse(cx+mouthW, mouthY-cornerShift, cornerR, cornerR, dark)

	return &Frame{
		Time:   t,
		Width:  w,
		Height: h,
		Pixels: pixels,
	}, nil
}

type flatCanvas struct {
	pixels []byte
	width  int
	height int
}

func (c *flatCanvas) fillEllipse(cx, cy, rx, ry float64, color [3]byte) {
	if rx <= 0 || ry <= 0 {
		return
	}
	minX, maxX := int(cx-rx), int(cx+rx)
	minY, maxY := int(cy-ry), int(cy+ry)
	for y := minY; y <= maxY; y++ {
		if y < 0 || y >= c.height {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < 0 || x >= c.width {
				continue
			}
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			if dx*dx+dy*dy > 1 {
				continue
			}
			i := (y*c.width + x) * 4
			c.pixels[i] = color[0]
			c.pixels[i+1] = color[1]
			c.pixels[i+2] = color[2]
			c.pixels[i+3] = 255
		}
	}
}
