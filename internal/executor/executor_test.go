package executor

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/stepdroid/internal/action"
	"github.com/v0xg/stepdroid/internal/device/devicetest"
	"github.com/v0xg/stepdroid/internal/verify"
)

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

func frame(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 108, 240))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// changingSurface flips the screen colour after every gesture.
func changingSurface() *devicetest.Surface {
	s := devicetest.New()
	s.Screen = frame(color.White)
	dark := false
	s.OnAction = func(string) {
		dark = !dark
		if dark {
			s.SetScreen(frame(color.Black))
		} else {
			s.SetScreen(frame(color.White))
		}
	}
	return s
}

type recorder struct{ events []Event }

func (r *recorder) Observe(e Event) { r.events = append(r.events, e) }

func newDispatcher(s *devicetest.Surface) (*Dispatcher, *sleepLog, *recorder) {
	sl := &sleepLog{}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.Sleep = sl.sleep
	opts.Observer = rec
	return New(s, opts), sl, rec
}

func mustParse(t *testing.T, raw string) *action.Descriptor {
	t.Helper()
	d, err := action.Parse(raw)
	require.NoError(t, err)
	return d
}

func TestToAbsolute(t *testing.T) {
	x, y := ToAbsolute(action.Point{X: 0, Y: 0}, 1080, 2400)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)

	x, y = ToAbsolute(action.Point{X: 1000, Y: 1000}, 1080, 2400)
	assert.Equal(t, 1080.0, x)
	assert.Equal(t, 2400.0, y)

	x, y = ToAbsolute(action.Point{X: 500, Y: 250}, 1080, 2400)
	assert.Equal(t, 540.0, x)
	assert.Equal(t, 600.0, y)

	x, y = ToAbsolute(action.Point{X: 1200, Y: -100}, 1000, 1000)
	assert.Equal(t, 1200.0, x)
	assert.Equal(t, -100.0, y)
}

func TestTapElement(t *testing.T) {
	s := changingSurface()
	d, sl, rec := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Tap", element=[500,500])`), s.Width, s.Height)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"tap 540,1200"}, s.Calls())
	require.NotNil(t, res.PageChanged)
	assert.True(t, *res.PageChanged)
	assert.Equal(t, ms(500, 1000), sl.waits)

	require.Len(t, rec.events, 1)
	assert.Equal(t, &image.Point{X: 540, Y: 1200}, rec.events[0].Target)
	assert.NotNil(t, rec.events[0].Before)
	assert.NotNil(t, rec.events[0].After)
}

func TestTapWithoutVisibleChangeFails(t *testing.T) {
	s := devicetest.New()
	s.Screen = frame(color.White)
	d, _, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `[{'type':'Tap','element':[389,116]}]`), s.Width, s.Height)

	assert.False(t, res.Success)
	require.NotNil(t, res.PageChanged)
	assert.False(t, *res.PageChanged)
	require.NotNil(t, res.SimilarityScore)
	assert.InDelta(t, 1.0, *res.SimilarityScore, 1e-9)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"pageChanged":false`)
	assert.Contains(t, string(b), `"similarityScore":1`)
}

func TestDegradedVerification(t *testing.T) {
	s := devicetest.New()
	d, _, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Back")`), s.Width, s.Height)

	assert.True(t, res.Success)
	assert.Contains(t, res.Message, verify.DegradedNote)
	assert.Nil(t, res.PageChanged)
	assert.Nil(t, res.SimilarityScore)
}

func TestTapByText(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s := changingSurface()
		ok := &devicetest.Node{Name: "ok"}
		s.TextNodes["OK"] = ok
		d, _, _ := newDispatcher(s)

		res := d.Dispatch(context.Background(), action.Do(action.VerbTap, action.Field{Name: "text", Value: action.String("OK")}), s.Width, s.Height)

		assert.True(t, res.Success, res.Message)
		assert.Equal(t, []string{"click ok"}, s.Calls())
		assert.NoError(t, ok.Balance())
		assert.Equal(t, 1, ok.Acquired())
	})

	t.Run("click refused", func(t *testing.T) {
		s := changingSurface()
		s.ClickOK = false
		ok := &devicetest.Node{Name: "ok"}
		s.TextNodes["OK"] = ok
		d, _, _ := newDispatcher(s)

		res := d.Dispatch(context.Background(), action.Do(action.VerbTap, action.Field{Name: "text", Value: action.String("OK")}), s.Width, s.Height)

		assert.False(t, res.Success)
		assert.Equal(t, "click failed: OK", res.Message)
		assert.NoError(t, ok.Balance())
	})

	t.Run("missing", func(t *testing.T) {
		s := changingSurface()
		d, _, _ := newDispatcher(s)

		res := d.Dispatch(context.Background(), action.Do(action.VerbTap, action.Field{Name: "text", Value: action.String("Nope")}), s.Width, s.Height)

		assert.False(t, res.Success)
		assert.Equal(t, "element not found: Nope", res.Message)
	})
}

func TestParamErrors(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`do(action="Tap", duration=5)`, "Tap requires element or text"},
		{`do(action="Tap", element=[5])`, "Tap requires element or text"},
		{`do(action="Type", element=[1,2])`, "Type requires text"},
		{`do(action="Swipe", start=[1,2])`, "Swipe requires start and end"},
		{`do(action="LongPress", text="x")`, "LongPress requires element"},
		{`do(action="DoubleTap")`, "DoubleTap requires element"},
		{`do(action="Launch")`, "Launch requires app"},
		{`{"_metadata":"do","text":"x"}`, "missing action"},
	}
	for _, tt := range tests {
		s := changingSurface()
		d, _, _ := newDispatcher(s)
		res := d.Dispatch(context.Background(), mustParse(t, tt.raw), s.Width, s.Height)
		assert.False(t, res.Success, tt.raw)
		assert.Equal(t, tt.want, res.Message, tt.raw)
		assert.Empty(t, s.Calls(), tt.raw)
	}
}

func TestTypeFindsFirstEditableDepthFirst(t *testing.T) {
	deep := &devicetest.Node{Name: "deep", IsEditable: true}
	a := &devicetest.Node{Name: "a", Children: []*devicetest.Node{{Name: "a0"}, deep}}
	b := &devicetest.Node{Name: "b", IsEditable: true}
	c := &devicetest.Node{Name: "c", IsEditable: true}
	root := &devicetest.Node{Name: "root", Children: []*devicetest.Node{a, b, c}}

	s := changingSurface()
	s.Root = root
	d, sl, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Type", text="hello")`), s.Width, s.Height)

	assert.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"settext deep"}, s.Calls())
	assert.Equal(t, []string{"hello"}, s.Typed)
	assert.NoError(t, root.Balance())
	assert.Equal(t, 0, b.Acquired(), "siblings after the match are never visited")
	assert.Equal(t, ms(500, 1000), sl.waits)
}

func TestTypeRootEditable(t *testing.T) {
	root := &devicetest.Node{Name: "root", IsEditable: true}
	s := changingSurface()
	s.Root = root
	d, _, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Type", text="hi")`), s.Width, s.Height)

	assert.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"settext root"}, s.Calls())
	assert.NoError(t, root.Balance())
}

func TestTypeWithoutInputField(t *testing.T) {
	root := &devicetest.Node{Name: "root", Children: []*devicetest.Node{
		{Name: "x", Children: []*devicetest.Node{{Name: "y"}}},
		{Name: "gone", IsEditable: true},
		{Name: "z"},
	}, Unavailable: map[int]bool{1: true}}
	s := changingSurface()
	s.Root = root
	d, _, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Type", text="hi")`), s.Width, s.Height)

	assert.False(t, res.Success)
	assert.Equal(t, "no input field found", res.Message)
	assert.NoError(t, root.Balance())
}

func TestLaunch(t *testing.T) {
	s := changingSurface()
	s.Installed["com.tencent.mm"] = true
	d, sl, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Launch", app="wechat")`), s.Width, s.Height)
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"launch com.tencent.mm"}, s.Calls())
	assert.Equal(t, ms(2000, 1000), sl.waits)

	res = d.Dispatch(context.Background(), mustParse(t, `do(action="Launch", app="Nonexistent")`), s.Width, s.Height)
	assert.False(t, res.Success)
	assert.Equal(t, "app not found: Nonexistent", res.Message)

	res = d.Dispatch(context.Background(), mustParse(t, `do(action="Launch", app="QQ")`), s.Width, s.Height)
	assert.False(t, res.Success)
	assert.Equal(t, "failed to launch QQ", res.Message)
}

func TestGestures(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		calls []string
		waits []time.Duration
	}{
		{"swipe", `do(action="Swipe", start=[0,0], end=[1000,1000])`, []string{"swipe 0,0->1080,2400"}, ms(500, 1000)},
		{"back", `do(action="Back")`, []string{"back"}, ms(500, 1000)},
		{"home", `{"_metadata":"do","action":"Home"}`, []string{"home"}, ms(500, 1000)},
		{"long press", `do(action="Long Press", element=[100,100])`, []string{"longpress 108,240"}, ms(800, 1000)},
		{"double tap", `do(action="DoubleTap", element=[100,100])`, []string{"tap 108,240", "tap 108,240"}, ms(100, 500, 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := devicetest.New()
			s.Screen = frame(color.White)
			s.OnAction = func(string) { s.SetScreen(frame(color.Black)) }
			d, sl, _ := newDispatcher(s)

			res := d.Dispatch(context.Background(), mustParse(t, tt.raw), s.Width, s.Height)

			assert.True(t, res.Success, res.Message)
			assert.Equal(t, tt.calls, s.Calls())
			assert.Equal(t, tt.waits, sl.waits)
		})
	}
}

func TestWait(t *testing.T) {
	s := devicetest.New()
	s.Screen = frame(color.White)
	d, sl, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Wait", duration="2 seconds")`), s.Width, s.Height)

	assert.True(t, res.Success, "unchanged screen is fine for Wait")
	assert.Equal(t, ms(2000, 1000), sl.waits)
	assert.Empty(t, s.Calls())
}

func TestUnsupportedVerb(t *testing.T) {
	s := changingSurface()
	d, _, _ := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `do(action="Teleport")`), s.Width, s.Height)
	assert.False(t, res.Success)
	assert.Equal(t, "unsupported action: Teleport", res.Message)
}

func TestFinish(t *testing.T) {
	s := changingSurface()
	d, sl, rec := newDispatcher(s)

	res := d.Dispatch(context.Background(), mustParse(t, `finish(message="all done")`), s.Width, s.Height)
	assert.True(t, res.Success)
	assert.Equal(t, "all done", res.Message)
	assert.Empty(t, s.Calls())
	assert.Empty(t, sl.waits)
	assert.Empty(t, rec.events)
}

func TestCanceledContext(t *testing.T) {
	s := changingSurface()
	d, _, _ := newDispatcher(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Dispatch(ctx, mustParse(t, `do(action="Tap", element=[1,1])`), s.Width, s.Height)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, context.Canceled.Error())
}

func TestAppTable(t *testing.T) {
	for _, name := range []string{"WeChat", "wechat", "微信", "We Chat", "com.tencent.mm"} {
		id, ok := DefaultApps.Resolve(name)
		assert.True(t, ok, name)
		assert.Equal(t, "com.tencent.mm", id, name)
	}
	id, ok := DefaultApps.Resolve("google-maps")
	assert.True(t, ok)
	assert.Equal(t, "com.google.android.apps.maps", id)

	_, ok = DefaultApps.Resolve("")
	assert.False(t, ok)

	for _, tt := range []struct{ name, want string }{
		{"虚拟定位", "com.lerist.fakelocation"},
		{"Mock Location", "com.lerist.fakelocation"},
		{"虚拟机", "com.vphonegaga.titan"},
		{"Virtual Machine", "com.vphonegaga.titan"},
		{"Telegram", "org.telegram.messenger"},
		{"Whatsapp", "com.whatsapp"},
		{"X", "com.twitter.android"},
		{"twitter", "com.twitter.android"},
		{"Tiktok", "com.zhiliaoapp.musically"},
		{"大众点评", "com.dianping.v1"},
		{"滴滴出行", "com.sdu.did.psnger"},
		{"腾讯视频", "com.tencent.qqlive"},
		{"爱奇艺", "com.qiyi.video"},
		{"优酷视频", "com.youku.phone"},
		{"芒果TV", "com.hunantv.imgo.activity"},
		{"豆瓣", "com.douban.frodo"},
		{"去哪儿", "com.Qunar"},
		{"去哪儿旅行", "com.Qunar"},
		{"肯德基", "com.yek.android.kfc.activitys"},
		{"红果短剧", "com.phoenix.read"},
		{"SimpleCalendarPro", "com.scientificcalculatorplus.simplecalculator.basiccalculator.mathcalc"},
		{"SimpleSMSMessenger", "com.simplemobiletools.smsmessenger"},
	} {
		id, ok := DefaultApps.Resolve(tt.name)
		assert.True(t, ok, tt.name)
		assert.Equal(t, tt.want, id, tt.name)
	}

	custom := NewAppTable(map[string][]string{"https://example.com": {"Example"}})
	id, ok = custom.Resolve("example")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com", id)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
