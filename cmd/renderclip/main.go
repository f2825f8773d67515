// renderclip renders a phoneme timeline to a video file offline, without
// the streaming server. Useful for checking lip-sync output and encoder
// setup from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/phoneme"
	"github.com/normanking/avatarstream/internal/pipeline"
	"github.com/normanking/avatarstream/internal/video"
)

func main() {
	var (
		input    = flag.String("phonemes", "", "JSON file with the phoneme timeline (required)")
		output   = flag.String("o", "out.mp4", "output video path")
		modelKey = flag.String("model", "", "glTF model path, empty uses the built-in head")
		emotion  = flag.String("emotion", "neutral", "emotion state for the clip")
		audio    = flag.String("audio", "", "optional audio track to mux in")
		duration = flag.Float64("duration", 0, "minimum clip length in seconds, 0 follows the phonemes")
		width    = flag.Int("width", 640, "frame width")
		height   = flag.Int("height", 480, "frame height")
		fps      = flag.Int("fps", 30, "frames per second")
		ffmpeg   = flag.String("ffmpeg", "ffmpeg", "encoder binary path")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()

	if err := run(log, *input, *output, *modelKey, *emotion, *audio, *duration, *width, *height, *fps, *ffmpeg); err != nil {
		log.Fatal().Err(err).Msg("render failed")
	}
}

func run(log zerolog.Logger, input, output, modelKey, emotionName, audio string, duration float64, width, height, fps int, ffmpeg string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read phoneme file: %w", err)
	}
	var phonemes []phoneme.Phoneme
	if err := json.Unmarshal(data, &phonemes); err != nil {
		return fmt.Errorf("parse phoneme file: %w", err)
	}
	if len(phonemes) == 0 {
		return fmt.Errorf("phoneme file %s is empty", input)
	}

	svc := pipeline.NewService(pipeline.Config{
		Width:  width,
		Height: height,
		FPS:    fps,
		Encoder: video.Config{
			BinaryPath: ffmpeg,
			Timeout:    5 * time.Minute,
		},
	}, log)
	defer svc.Close()

	start := time.Now()
	res, err := svc.RenderClip(context.Background(), pipeline.ClipRequest{
		ModelKey:  modelKey,
		Phonemes:  phonemes,
		Emotion:   emotionName,
		AudioPath: audio,
		Duration:  duration,
	})
	if err != nil {
		var encErr *video.EncodeError
		if errors.As(err, &encErr) && res != nil && res.Metadata != nil {
			log.Warn().Err(err).Msg("encoding failed, writing frame metadata instead")
			metaOut := output + ".json"
			metaData, merr := json.MarshalIndent(res.Metadata, "", "  ")
			if merr != nil {
				return merr
			}
			if werr := os.WriteFile(metaOut, metaData, 0644); werr != nil {
				return werr
			}
			log.Info().Str("path", metaOut).Int("frames", res.Metadata.FrameCount).Msg("metadata written")
			return nil
		}
		return err
	}

	if err := os.WriteFile(output, res.Video, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().
		Str("path", output).
		Int("bytes", len(res.Video)).
		Dur("took", time.Since(start)).
		Msg("clip rendered")
	return nil
}
