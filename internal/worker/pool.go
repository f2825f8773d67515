// Package worker runs bulk frame production on a fixed-size pool. Every
// worker owns its own renderer and model instance, so no render state ever
// crosses a goroutine boundary.
package worker

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/blend"
	"github.com/normanking/avatarstream/internal/model"
	"github.com/normanking/avatarstream/internal/phoneme"
	"github.com/normanking/avatarstream/internal/render"
)

// SmallJobThreshold is the frame count below which spinning up workers
// costs more than it saves; shorter jobs render sequentially.
const SmallJobThreshold = 50

// Task is one frame to produce. The worker derives lip-sync weights from
// the phoneme sequence at Time and composes them with the prepared
// emotion weights.
type Task struct {
	FrameIndex     int
	Time           float64
	Phonemes       []phoneme.Phoneme
	EmotionWeights blend.Weights
	LipSyncWeight  float32
	EmotionWeight  float32
}

// Result carries either a frame or that frame's error, never both.
type Result struct {
	FrameIndex int
	Frame      *render.Frame
	Err        error
}

type Pool struct {
	size    int
	factory func() render.Renderer
	matrix  *phoneme.Matrix
	log     zerolog.Logger
}

// DefaultSize is min(4, available cores).
func DefaultSize() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NewPool builds a pool whose workers create renderers through factory.
func NewPool(size int, factory func() render.Renderer, log zerolog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	return &Pool{
		size:    size,
		factory: factory,
		matrix:  phoneme.NewMatrix(),
		log:     log.With().Str("component", "worker-pool").Logger(),
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Render produces all tasks and returns results in frame-index order.
// A failing task yields an error Result for that frame only; the rest of
// the job continues. Context cancellation fails the remaining tasks.
func (p *Pool) Render(ctx context.Context, m *model.Model, tasks []Task) []Result {
	if len(tasks) < SmallJobThreshold {
		return p.renderSequential(ctx, m, tasks)
	}
	return p.renderParallel(ctx, m, tasks)
}

func (p *Pool) renderSequential(ctx context.Context, m *model.Model, tasks []Task) []Result {
	r := p.factory()
	inst := m.Clone()

	results := make([]Result, 0, len(tasks))
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{FrameIndex: task.FrameIndex, Err: err})
			continue
		}
		results = append(results, p.renderOne(r, inst, task))
	}
	return results
}

func (p *Pool) renderParallel(ctx context.Context, m *model.Model, tasks []Task) []Result {
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := p.factory()
			inst := m.Clone()
			for task := range taskCh {
				if err := ctx.Err(); err != nil {
					resultCh <- Result{FrameIndex: task.FrameIndex, Err: err}
					continue
				}
				resultCh <- p.renderOne(r, inst, task)
			}
		}()
	}

	go func() {
		for _, task := range tasks {
			taskCh <- task
		}
		close(taskCh)
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(tasks))
	failed := 0
	for res := range resultCh {
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}
	// Workers complete out of order; hand frames back in index order.
	sort.Slice(results, func(i, j int) bool {
		return results[i].FrameIndex < results[j].FrameIndex
	})

	if failed > 0 {
		p.log.Warn().Int("failed", failed).Int("total", len(tasks)).Msg("job finished with frame errors")
	}
	return results
}

func (p *Pool) renderOne(r render.Renderer, inst *model.Instance, task Task) Result {
	lip := p.matrix.WeightsAt(task.Phonemes, task.Time)

	var final blend.Weights
	for i := range final {
		final[i] = blend.Clamp01(task.LipSyncWeight*lip[i] + task.EmotionWeight*task.EmotionWeights[i])
	}

	frame, err := r.RenderFrame(inst, task.Time, final.ToSlice())
	if err != nil {
		return Result{FrameIndex: task.FrameIndex, Err: &render.RenderError{FrameIndex: task.FrameIndex, Err: err}}
	}
	frame.Index = task.FrameIndex
	return Result{FrameIndex: task.FrameIndex, Frame: frame}
}
