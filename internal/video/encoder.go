// Package video assembles ordered frame sequences into a container file by
// driving an external encoder binary. Encoding never sits on the streaming
// path; it is a bounded, timeout-guarded call made by batch requests only.
package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/metrics"
	"github.com/normanking/avatarstream/internal/render"
)

// EncodeError is request-level: the render work is kept and reported as
// metadata instead of failing the whole request.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode video: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// FrameInfo is the per-frame timing reported in the metadata fallback.
type FrameInfo struct {
	Index int     `json:"index"`
	Time  float64 `json:"time"`
}

// Metadata is what callers get when the encoder cannot produce a
// container file.
type Metadata struct {
	FrameCount int         `json:"frameCount"`
	FPS        int         `json:"fps"`
	Frames     []FrameInfo `json:"frames"`
	Error      string      `json:"error,omitempty"`
}

type Config struct {
	BinaryPath string        // encoder executable, e.g. ffmpeg
	Timeout    time.Duration // whole-invocation guard
	Container  string        // output extension, e.g. mp4
}

func (c Config) withDefaults() Config {
	if c.BinaryPath == "" {
		c.BinaryPath = "ffmpeg"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Container == "" {
		c.Container = "mp4"
	}
	return c
}

type Encoder struct {
	cfg Config
	log zerolog.Logger
}

func NewEncoder(cfg Config, log zerolog.Logger) *Encoder {
	return &Encoder{
		cfg: cfg.withDefaults(),
		log: log.With().Str("component", "video-encoder").Logger(),
	}
}

// Encode writes the frames as numbered PNGs and invokes the external
// encoder. On success it returns the container bytes; on any encoder
// failure it returns Metadata and an EncodeError so the caller can fall
// back to a structured response.
func (e *Encoder) Encode(ctx context.Context, frames []*render.Frame, fps int, audioPath string) ([]byte, *Metadata, error) {
	meta := &Metadata{FrameCount: len(frames), FPS: fps}
	for _, f := range frames {
		meta.Frames = append(meta.Frames, FrameInfo{Index: f.Index, Time: f.Time})
	}

	if len(frames) == 0 {
		meta.Error = "no frames to encode"
		return nil, meta, &EncodeError{Err: fmt.Errorf("no frames")}
	}

	workDir, err := os.MkdirTemp("", "avatarstream-encode-")
	if err != nil {
		meta.Error = err.Error()
		return nil, meta, &EncodeError{Err: err}
	}
	defer os.RemoveAll(workDir)

	for i, f := range frames {
		data, err := f.EncodePNG()
		if err != nil {
			meta.Error = err.Error()
			return nil, meta, &EncodeError{Err: err}
		}
		name := filepath.Join(workDir, fmt.Sprintf("frame_%06d.png", i))
		if err := os.WriteFile(name, data, 0644); err != nil {
			meta.Error = err.Error()
			return nil, meta, &EncodeError{Err: err}
		}
	}

	outPath := filepath.Join(workDir, "out."+e.cfg.Container)
	args := []string{
		"-y",
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", filepath.Join(workDir, "frame_%06d.png"),
	}
	if audioPath != "" {
		args = append(args, "-i", audioPath, "-c:a", "aac", "-shortest")
	}
	args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", outPath)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.cfg.BinaryPath, args...)
	output, err := cmd.CombinedOutput()
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.log.Warn().Err(err).Str("output", tail(output, 512)).Msg("encoder failed, falling back to metadata")
		meta.Error = err.Error()
		return nil, meta, &EncodeError{Err: err}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		meta.Error = err.Error()
		return nil, meta, &EncodeError{Err: err}
	}

	e.log.Info().
		Int("frames", len(frames)).
		Int("fps", fps).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("video encoded")
	return data, meta, nil
}

func (e *Encoder) Container() string {
	return e.cfg.Container
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
