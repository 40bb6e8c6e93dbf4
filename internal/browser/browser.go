// Package browser implements device.Surface over a Chromium page driven by
// rod. Apps are URLs, the home screen is a configured home page, and
// gestures are synthesized with CDP mouse events.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/v0xg/stepdroid/internal/device"
)

// Options configures the browser surface
type Options struct {
	Width      int
	Height     int
	Headless   bool
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string
	HomeURL    string
	// Apps maps platform identifiers to the URL that "launches" them.
	Apps          map[string]string
	LoadTimeout   time.Duration
	LongPressHold time.Duration
	MoveSteps     int
	Logger        *zap.Logger
}

func (o *Options) defaults() {
	if o.Width == 0 {
		o.Width = 412
	}
	if o.Height == 0 {
		o.Height = 915
	}
	if o.HomeURL == "" {
		o.HomeURL = "about:blank"
	}
	if o.LoadTimeout == 0 {
		o.LoadTimeout = 10 * time.Second
	}
	if o.LongPressHold == 0 {
		o.LongPressHold = 600 * time.Millisecond
	}
	if o.MoveSteps <= 0 {
		o.MoveSteps = 8
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Surface wraps the Rod browser and page for reuse
type Surface struct {
	browser *rod.Browser
	page    *rod.Page
	opts    Options

	mu     sync.Mutex
	cursor proto.Point
}

// Launch starts (or connects to) a browser and opens the home page.
func Launch(ctx context.Context, opts Options) (*Surface, error) {
	opts.defaults()

	controlURL := opts.ControlURL
	if controlURL == "" {
		path, _ := launcher.LookPath()
		l := launcher.New().Bin(path).Headless(opts.Headless)
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: opts.HomeURL})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
		Mobile:            true,
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	opts.Logger.Info("browser surface ready",
		zap.String("home", opts.HomeURL), zap.Int("width", opts.Width), zap.Int("height", opts.Height))
	return &Surface{browser: browser, page: page, opts: opts}, nil
}

// Close cleans up browser resources
func (s *Surface) Close() error {
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

func (s *Surface) p(ctx context.Context) *rod.Page {
	return s.page.Context(ctx)
}

// settle waits for the load event and a short network quiet period, without
// hanging on pages that keep connections open.
func (s *Surface) settle(ctx context.Context) {
	p := s.p(ctx).Timeout(s.opts.LoadTimeout)
	if err := p.WaitLoad(); err != nil {
		s.opts.Logger.Debug("page load wait", zap.Error(err))
	}
	p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)()
}

func (s *Surface) Tap(ctx context.Context, x, y float64) error {
	p := s.p(ctx)
	to := proto.Point{X: x, Y: y}
	if err := s.glide(p, to, proto.InputMouseButtonNone); err != nil {
		return err
	}
	if err := mouse(p, proto.InputDispatchMouseEventTypeMousePressed, to, proto.InputMouseButtonLeft); err != nil {
		return err
	}
	return mouse(p, proto.InputDispatchMouseEventTypeMouseReleased, to, proto.InputMouseButtonLeft)
}

func (s *Surface) Swipe(ctx context.Context, x1, y1, x2, y2 float64) error {
	p := s.p(ctx)
	from, to := proto.Point{X: x1, Y: y1}, proto.Point{X: x2, Y: y2}
	if err := s.jump(p, from); err != nil {
		return err
	}
	if err := mouse(p, proto.InputDispatchMouseEventTypeMousePressed, from, proto.InputMouseButtonLeft); err != nil {
		return err
	}
	if err := s.glide(p, to, proto.InputMouseButtonLeft); err != nil {
		return err
	}
	return mouse(p, proto.InputDispatchMouseEventTypeMouseReleased, to, proto.InputMouseButtonLeft)
}

func (s *Surface) LongPress(ctx context.Context, x, y float64) error {
	p := s.p(ctx)
	at := proto.Point{X: x, Y: y}
	if err := s.glide(p, at, proto.InputMouseButtonNone); err != nil {
		return err
	}
	if err := mouse(p, proto.InputDispatchMouseEventTypeMousePressed, at, proto.InputMouseButtonLeft); err != nil {
		return err
	}
	t := time.NewTimer(s.opts.LongPressHold)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		// Release the button anyway so the page is not left mid-press.
		mouse(s.page, proto.InputDispatchMouseEventTypeMouseReleased, at, proto.InputMouseButtonLeft)
		return ctx.Err()
	}
	return mouse(p, proto.InputDispatchMouseEventTypeMouseReleased, at, proto.InputMouseButtonLeft)
}

func (s *Surface) Back(ctx context.Context) error {
	if err := s.p(ctx).NavigateBack(); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	s.settle(ctx)
	return nil
}

func (s *Surface) Home(ctx context.Context) error {
	if err := s.p(ctx).Navigate(s.opts.HomeURL); err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	s.settle(ctx)
	return nil
}

// Launch opens the URL registered for identifier. An identifier that is
// itself an http(s) URL is opened directly. Unknown identifiers report false.
func (s *Surface) Launch(ctx context.Context, identifier string) (bool, error) {
	target, ok := s.opts.Apps[identifier]
	if !ok {
		if !isWebURL(identifier) {
			return false, nil
		}
		target = identifier
	}
	if err := s.p(ctx).Navigate(target); err != nil {
		return false, fmt.Errorf("navigate %s: %w", target, err)
	}
	s.settle(ctx)
	return true, nil
}

func (s *Surface) Screenshot(ctx context.Context) (image.Image, error) {
	data, err := s.p(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (s *Surface) Size(context.Context) (int, int, error) {
	return s.opts.Width, s.opts.Height, nil
}

// ForegroundApp returns the identifier whose URL shares the current page's
// host, or the host itself when no registered app matches.
func (s *Surface) ForegroundApp(ctx context.Context) (string, error) {
	res, err := s.p(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return "", err
	}
	return appForURL(res.Value.Str(), s.opts.Apps), nil
}

func (s *Surface) NetworkConnected(ctx context.Context) (bool, error) {
	res, err := s.p(ctx).Eval(`() => navigator.onLine`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (s *Surface) VisibleText(ctx context.Context) (string, error) {
	res, err := s.p(ctx).Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// glide moves the pointer from its last position to `to` with eased steps.
func (s *Surface) glide(p *rod.Page, to proto.Point, button proto.InputMouseButton) error {
	s.mu.Lock()
	from := s.cursor
	s.mu.Unlock()
	for _, pt := range path(from, to, s.opts.MoveSteps) {
		if err := mouse(p, proto.InputDispatchMouseEventTypeMouseMoved, pt, button); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cursor = to
	s.mu.Unlock()
	return nil
}

func (s *Surface) jump(p *rod.Page, to proto.Point) error {
	if err := mouse(p, proto.InputDispatchMouseEventTypeMouseMoved, to, proto.InputMouseButtonNone); err != nil {
		return err
	}
	s.mu.Lock()
	s.cursor = to
	s.mu.Unlock()
	return nil
}

func mouse(p *rod.Page, typ proto.InputDispatchMouseEventType, at proto.Point, button proto.InputMouseButton) error {
	ev := proto.InputDispatchMouseEvent{Type: typ, X: at.X, Y: at.Y, Button: button}
	if typ != proto.InputDispatchMouseEventTypeMouseMoved {
		ev.ClickCount = 1
	}
	if err := ev.Call(p); err != nil {
		return fmt.Errorf("mouse %s at %.0f,%.0f: %w", typ, at.X, at.Y, err)
	}
	return nil
}

// path returns steps points from `from` (exclusive) to `to` (inclusive).
func path(from, to proto.Point, steps int) []proto.Point {
	if steps < 1 {
		steps = 1
	}
	pts := make([]proto.Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := easeInOutQuad(float64(i) / float64(steps))
		pts = append(pts, proto.Point{
			X: from.X + t*(to.X-from.X),
			Y: from.Y + t*(to.Y-from.Y),
		})
	}
	return pts
}

func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - (-2*t+2)*(-2*t+2)/2
}

func isWebURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func appForURL(current string, apps map[string]string) string {
	u, err := url.Parse(current)
	if err != nil || u.Host == "" {
		return current
	}
	for id, target := range apps {
		if t, err := url.Parse(target); err == nil && strings.EqualFold(t.Host, u.Host) {
			return id
		}
	}
	return u.Host
}

var _ device.Surface = (*Surface)(nil)
var _ device.Describer = (*Surface)(nil)
