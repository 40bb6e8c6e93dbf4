package executor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/stepdroid/internal/action"
	"github.com/v0xg/stepdroid/internal/device"
	"github.com/v0xg/stepdroid/internal/metrics"
	"github.com/v0xg/stepdroid/internal/verify"
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Event describes one dispatched action for observers
type Event struct {
	Descriptor *action.Descriptor
	Before     image.Image
	After      image.Image
	// Target is the absolute point touched, if any, on a Width x Height surface.
	Target        *image.Point
	Width, Height int
	Result        *ExecuteResult
}

// Observer receives an Event after every executable action
type Observer interface {
	Observe(Event)
}

// Options configures settle delays and collaborators
type Options struct {
	LaunchSettle    time.Duration
	Settle          time.Duration // Tap, Type, Swipe, Back, Home
	LongPressSettle time.Duration
	DoubleTapGap    time.Duration
	VerifyDelay     time.Duration

	Apps     AppResolver
	Verifier *verify.Verifier
	Observer Observer
	Logger   *zap.Logger
	Sleep    Sleeper
}

// DefaultOptions returns the standard settle delays.
func DefaultOptions() Options {
	return Options{
		LaunchSettle:    2000 * time.Millisecond,
		Settle:          500 * time.Millisecond,
		LongPressSettle: 800 * time.Millisecond,
		DoubleTapGap:    100 * time.Millisecond,
		VerifyDelay:     1000 * time.Millisecond,
	}
}

// Dispatcher executes descriptors against a device surface
type Dispatcher struct {
	surface device.Surface
	opts    Options
}

// New creates a Dispatcher. Unset collaborators fall back to defaults.
func New(surface device.Surface, opts Options) *Dispatcher {
	if opts.Apps == nil {
		opts.Apps = DefaultApps
	}
	if opts.Verifier == nil {
		opts.Verifier = verify.New(verify.DefaultThreshold)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Dispatcher{surface: surface, opts: opts}
}

// outcome is the basic, unverified result of one verb
type outcome struct {
	message string
	target  *image.Point
}

// Dispatch runs one descriptor and verifies its effect. Failures are
// reported in the result, never as a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, desc *action.Descriptor, width, height int) *ExecuteResult {
	start := time.Now()
	log := d.opts.Logger.With(zap.Stringer("kind", desc.Kind), zap.String("verb", string(desc.Verb)))

	if desc.Kind == action.KindFinish {
		metrics.ActionsDispatched.WithLabelValues("finish", "success").Inc()
		log.Info("finish", zap.String("message", action.Excerpt(desc.Message(), action.ExcerptLimit)))
		return succeeded(desc.Message())
	}

	before := d.capture(ctx, log)
	out, err := d.execute(ctx, desc, width, height)

	var result *ExecuteResult
	var after image.Image
	if err == nil {
		err = d.opts.Sleep(ctx, d.opts.VerifyDelay)
	}
	if err != nil {
		result = failed(err)
		log.Warn("action failed", zap.Error(err), zap.String("class", errorClass(err)))
	} else {
		after = d.capture(ctx, log)
		verdict := verify.Judge(desc.Verb, true, out.message, d.opts.Verifier.Compare(before, after))
		result = &ExecuteResult{
			Success:         verdict.Success,
			Message:         verdict.Message,
			PageChanged:     verdict.Changed,
			SimilarityScore: verdict.Similarity,
		}
		if verdict.Similarity != nil {
			metrics.Similarity.Observe(*verdict.Similarity)
		}
		log.Debug("action verified",
			zap.Bool("success", result.Success),
			zap.Any("similarity", verdict.Similarity))
	}

	metrics.ActionsDispatched.WithLabelValues(string(desc.Verb), status(result, err)).Inc()
	metrics.ActionDuration.WithLabelValues(string(desc.Verb)).Observe(float64(time.Since(start).Milliseconds()))

	if d.opts.Observer != nil {
		d.opts.Observer.Observe(Event{
			Descriptor: desc, Before: before, After: after,
			Target: out.target, Width: width, Height: height, Result: result,
		})
	}
	return result
}

func (d *Dispatcher) capture(ctx context.Context, log *zap.Logger) image.Image {
	img, err := d.surface.Screenshot(ctx)
	if err != nil {
		log.Debug("screenshot unavailable", zap.Error(err))
		return nil
	}
	return img
}

func (d *Dispatcher) execute(ctx context.Context, desc *action.Descriptor, width, height int) (outcome, error) {
	verb := desc.Verb
	switch verb {
	case "":
		return outcome{}, &ParamError{}
	case action.VerbLaunch:
		return d.launch(ctx, desc)
	case action.VerbTap:
		if p, err := desc.Point("element"); err == nil {
			return d.tapAt(ctx, verb, p, width, height, d.opts.Settle)
		}
		if text, ok := desc.Text(); ok {
			return d.tapText(ctx, text)
		}
		return outcome{}, &ParamError{Verb: verb, Missing: "element or text"}
	case action.VerbType:
		text, ok := desc.Text()
		if !ok {
			return outcome{}, &ParamError{Verb: verb, Missing: "text"}
		}
		return d.typeText(ctx, text)
	case action.VerbSwipe:
		start, err1 := desc.Point("start")
		end, err2 := desc.Point("end")
		if err1 != nil || err2 != nil {
			return outcome{}, &ParamError{Verb: verb, Missing: "start and end"}
		}
		x1, y1 := ToAbsolute(start, width, height)
		x2, y2 := ToAbsolute(end, width, height)
		if err := d.surface.Swipe(ctx, x1, y1, x2, y2); err != nil {
			return outcome{}, dispatchErr(verb, "swipe", err)
		}
		return outcome{target: absPoint(x1, y1)}, d.opts.Sleep(ctx, d.opts.Settle)
	case action.VerbBack:
		if err := d.surface.Back(ctx); err != nil {
			return outcome{}, dispatchErr(verb, "back", err)
		}
		return outcome{}, d.opts.Sleep(ctx, d.opts.Settle)
	case action.VerbHome:
		if err := d.surface.Home(ctx); err != nil {
			return outcome{}, dispatchErr(verb, "home", err)
		}
		return outcome{}, d.opts.Sleep(ctx, d.opts.Settle)
	case action.VerbLongPress:
		p, err := desc.Point("element")
		if err != nil {
			return outcome{}, &ParamError{Verb: verb, Missing: "element"}
		}
		x, y := ToAbsolute(p, width, height)
		if err := d.surface.LongPress(ctx, x, y); err != nil {
			return outcome{}, dispatchErr(verb, "long press", err)
		}
		return outcome{target: absPoint(x, y)}, d.opts.Sleep(ctx, d.opts.LongPressSettle)
	case action.VerbDoubleTap:
		p, err := desc.Point("element")
		if err != nil {
			return outcome{}, &ParamError{Verb: verb, Missing: "element"}
		}
		if _, err := d.tapAt(ctx, verb, p, width, height, d.opts.DoubleTapGap); err != nil {
			return outcome{}, err
		}
		return d.tapAt(ctx, verb, p, width, height, d.opts.Settle)
	case action.VerbWait:
		ms := desc.DurationMillis()
		if err := d.opts.Sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
			return outcome{}, err
		}
		return outcome{message: fmt.Sprintf("waited %d ms", ms)}, nil
	default:
		return outcome{}, dispatchErr(verb, "unsupported action: "+string(verb), nil)
	}
}

func (d *Dispatcher) launch(ctx context.Context, desc *action.Descriptor) (outcome, error) {
	app, ok := desc.App()
	if !ok {
		return outcome{}, &ParamError{Verb: action.VerbLaunch, Missing: "app"}
	}
	id, ok := d.opts.Apps.Resolve(app)
	if !ok {
		return outcome{}, dispatchErr(action.VerbLaunch, "app not found: "+app, nil)
	}
	launched, err := d.surface.Launch(ctx, id)
	if err != nil {
		return outcome{}, dispatchErr(action.VerbLaunch, "launch "+id, err)
	}
	if !launched {
		return outcome{}, dispatchErr(action.VerbLaunch, "failed to launch "+app, nil)
	}
	return outcome{message: "launched " + id}, d.opts.Sleep(ctx, d.opts.LaunchSettle)
}

func (d *Dispatcher) tapAt(ctx context.Context, verb action.Verb, p action.Point, width, height int, settle time.Duration) (outcome, error) {
	x, y := ToAbsolute(p, width, height)
	if err := d.surface.Tap(ctx, x, y); err != nil {
		return outcome{}, dispatchErr(verb, "tap", err)
	}
	return outcome{target: absPoint(x, y)}, d.opts.Sleep(ctx, settle)
}

func (d *Dispatcher) tapText(ctx context.Context, text string) (outcome, error) {
	node, err := d.surface.FindNodeByText(ctx, text)
	if err != nil {
		return outcome{}, dispatchErr(action.VerbTap, "find "+text, err)
	}
	if node == nil {
		return outcome{}, dispatchErr(action.VerbTap, "element not found: "+text, nil)
	}
	defer node.Release()

	ok, err := d.surface.PerformClick(ctx, node)
	if err != nil {
		return outcome{}, dispatchErr(action.VerbTap, "click "+text, err)
	}
	if !ok {
		return outcome{}, dispatchErr(action.VerbTap, "click failed: "+text, nil)
	}
	return outcome{}, d.opts.Sleep(ctx, d.opts.Settle)
}

func (d *Dispatcher) typeText(ctx context.Context, text string) (outcome, error) {
	root, err := d.surface.RootNode(ctx)
	if err != nil {
		return outcome{}, dispatchErr(action.VerbType, "view tree", err)
	}
	if root == nil {
		return outcome{}, dispatchErr(action.VerbType, "no input field found", nil)
	}
	defer root.Release()

	target := FindEditable(root)
	if target == nil {
		return outcome{}, dispatchErr(action.VerbType, "no input field found", nil)
	}
	if target != root {
		defer target.Release()
	}

	ok, err := d.surface.SetText(ctx, target, text)
	if err != nil {
		return outcome{}, dispatchErr(action.VerbType, "set text", err)
	}
	if !ok {
		return outcome{}, dispatchErr(action.VerbType, "set text failed", nil)
	}
	return outcome{}, d.opts.Sleep(ctx, d.opts.Settle)
}

func absPoint(x, y float64) *image.Point {
	return &image.Point{X: int(x), Y: int(y)}
}

func errorClass(err error) string {
	var pe *ParamError
	var de *DispatchError
	switch {
	case errors.As(err, &pe):
		return "param"
	case errors.As(err, &de):
		return "dispatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

func status(r *ExecuteResult, err error) string {
	if err != nil {
		return errorClass(err)
	}
	if r.Success {
		return "success"
	}
	return "unverified"
}
