// Package recording turns the frames seen during a run into an animated GIF
// with the touched points marked.
package recording

import (
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/v0xg/stepdroid/internal/executor"
)

// Options configures GIF generation
type Options struct {
	FPS      int
	MaxWidth uint
	// MaxFrames caps memory use; later frames are dropped once reached.
	MaxFrames int
	Logger    *zap.Logger
}

// Recorder collects one annotated frame per dispatched action.
// It implements executor.Observer.
type Recorder struct {
	opts    Options
	mu      sync.Mutex
	frames  []image.Image
	dropped int
}

func New(opts Options) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = 1
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 480
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = 500
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Recorder{opts: opts}
}

// Observe records the before frame of the first action, then the after
// frame of every action, marking where it touched.
func (r *Recorder) Observe(ev executor.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.frames) == 0 && ev.Before != nil {
		r.add(annotate(ev.Before, nil, true))
	}
	frame := ev.After
	if frame == nil {
		frame = ev.Before
	}
	if frame == nil {
		return
	}
	ok := ev.Result != nil && ev.Result.Success
	r.add(annotate(frame, scalePoint(ev.Target, ev.Width, ev.Height, frame.Bounds()), ok))
}

func (r *Recorder) add(img image.Image) {
	if len(r.frames) >= r.opts.MaxFrames {
		r.dropped++
		return
	}
	r.frames = append(r.frames, img)
}

// Len returns the number of frames kept.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Frames returns a copy of the frame list.
func (r *Recorder) Frames() []image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]image.Image(nil), r.frames...)
}

// Save writes the recording to path and returns its size in bytes.
func (r *Recorder) Save(path string) (int64, error) {
	frames := r.Frames()
	r.mu.Lock()
	dropped := r.dropped
	r.mu.Unlock()

	size, err := WriteFile(path, frames, r.opts.FPS, r.opts.MaxWidth)
	if err != nil {
		return 0, err
	}
	r.opts.Logger.Info("recording saved",
		zap.String("path", path), zap.Int("frames", len(frames)),
		zap.Int("dropped", dropped), zap.Int64("bytes", size))
	return size, nil
}

// scalePoint maps a point on a width x height surface onto frame bounds.
func scalePoint(p *image.Point, width, height int, frame image.Rectangle) *image.Point {
	if p == nil {
		return nil
	}
	if width <= 0 || height <= 0 {
		return &image.Point{X: p.X, Y: p.Y}
	}
	return &image.Point{
		X: p.X * frame.Dx() / width,
		Y: p.Y * frame.Dy() / height,
	}
}

var _ executor.Observer = (*Recorder)(nil)
