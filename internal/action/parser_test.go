package action

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(x, y int64) Value { return Array(Int(x), Int(y)) }

func TestRecoverStages(t *testing.T) {
	tests := []struct {
		name  string
		input string
		stage Stage
		want  *Descriptor
	}{
		{
			name:  "direct object",
			input: `  {"_metadata":"do","action":"Tap","element":[500,300]}  `,
			stage: StageDirect,
			want:  Do(VerbTap, Field{"element", pt(500, 300)}),
		},
		{
			name:  "object inside chatter",
			input: "Sure. {\"_metadata\":\"finish\",\"message\":\"done\"} Anything else?",
			stage: StageCandidate,
			want:  Finish("done"),
		},
		{
			name:  "first discriminated candidate wins",
			input: `{"thought":"look at {nested}"} then {"_metadata":"do","action":"Back"} and {"_metadata":"do","action":"Home"}`,
			stage: StageCandidate,
			want:  Do(VerbBack),
		},
		{
			name:  "do call",
			input: `do(action="Launch", app="QQ")`,
			stage: StageRepair,
			want:  Do(VerbLaunch, Field{"app", String("QQ")}),
		},
		{
			name:  "do call with arrays and numbers",
			input: `<answer>do(action="Swipe", start=[100, 200], end=[100.5, 800], duration=300)</answer>`,
			stage: StageRepair,
			want: Do(VerbSwipe,
				Field{"start", pt(100, 200)},
				Field{"end", Array(Float(100.5), Int(800))},
				Field{"duration", Int(300)},
			),
		},
		{
			name:  "finish call keeps parentheses in message",
			input: `finish(message="All done (really)")`,
			stage: StageRepair,
			want:  Finish("All done (really)"),
		},
		{
			name:  "finish call with single quotes",
			input: `finish(message='it\'s done')`,
			stage: StageRepair,
			want:  Finish("it's done"),
		},
		{
			name:  "bracketed single-quote list",
			input: `[{'type':'Tap','element':[389,116]}]`,
			stage: StageRepair,
			want:  Do(VerbTap, Field{"element", pt(389, 116)}),
		},
		{
			name:  "single-quote object",
			input: `{'type':'Home'}`,
			stage: StageRepair,
			want:  Do(VerbHome),
		},
		{
			name:  "object without discriminator",
			input: `{"action":"Type","text":"hello"}`,
			stage: StageRepair,
			want:  Do(VerbType, Field{"text", String("hello")}),
		},
		{
			name:  "loose fields",
			input: `I will tap it now. action: "Tap", element: [10, 20]`,
			stage: StageExtract,
			want:  Do(VerbTap, Field{"element", pt(10, 20)}),
		},
		{
			name:  "loose message becomes finish",
			input: `The task is complete, message: 'checked in'`,
			stage: StageExtract,
			want:  Finish("checked in"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stage, err := Recover(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.stage, stage)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCanonicalSerialization(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`do(action="Launch", app="QQ")`, `{"_metadata":"do","action":"Launch","app":"QQ"}`},
		{`[{'type':'Tap','element':[389,116]}]`, `{"_metadata":"do","action":"Tap","element":[389,116]}`},
		{`finish(message="ok")`, `{"_metadata":"finish","message":"ok"}`},
		{`do(action="Wait", duration=2.0)`, `{"_metadata":"do","action":"Wait","duration":2.0}`},
	}
	for _, tt := range tests {
		d, err := Parse(tt.input)
		require.NoError(t, err, tt.input)
		b, err := d.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(b))
		assert.True(t, strings.HasPrefix(string(b), `{"_metadata":`), "discriminator must come first")
	}
}

func TestParseIsIdempotent(t *testing.T) {
	inputs := []string{
		`{"_metadata":"do","action":"Tap","element":[1,2.5]}`,
		`{"_metadata":"do","action":"Type","text":"héllo \"world\""}`,
		`{"_metadata":"finish","message":"done"}`,
		`{"_metadata":"do","action":"Wait","duration":"2 seconds"}`,
		`{"_metadata":"do","action":"Swipe","start":[0,0],"end":[1000,1000],"fast":true}`,
		`do(action="Wait", duration=2.0)`,
		`[{'type':'LongPress','element':[10,990]}]`,
	}
	for _, in := range inputs {
		first, err := Parse(in)
		require.NoError(t, err, in)
		b, err := first.MarshalJSON()
		require.NoError(t, err)
		second, err := Parse(string(b))
		require.NoError(t, err, string(b))
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("round trip of %s changed descriptor (-first +second):\n%s", in, diff)
		}
	}
}

func TestNumberIdentity(t *testing.T) {
	d, err := Parse(`{"_metadata":"do","action":"Tap","element":[1,2.5]}`)
	require.NoError(t, err)
	v, ok := d.Field("element")
	require.True(t, ok)
	items, ok := v.AsArray()
	require.True(t, ok)
	require.Len(t, items, 2)

	assert.True(t, items[0].IsInt())
	assert.False(t, items[1].IsInt())
	n, ok := items[0].AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)
	_, ok = items[1].AsInt()
	assert.False(t, ok)
}

func TestParseVerb(t *testing.T) {
	cases := map[string]Verb{
		"tap":        VerbTap,
		"TAP":        VerbTap,
		"long press": VerbLongPress,
		"Long_Press": VerbLongPress,
		"double tap": VerbDoubleTap,
		"DoubleTap":  VerbDoubleTap,
		" Launch ":   VerbLaunch,
		"Teleport":   Verb("Teleport"),
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseVerb(in), in)
	}
	assert.False(t, Verb("Teleport").Known())
	assert.True(t, VerbDoubleTap.Known())
}

func TestParseFailures(t *testing.T) {
	long := strings.Repeat("no action here ", 50)

	for _, in := range []string{"", "   ", "hello world", long, `{"_metadata":"maybe"}`} {
		_, err := Parse(in)
		var perr *ParseError
		require.True(t, errors.As(err, &perr), "input %q", in)
		assert.LessOrEqual(t, len([]rune(perr.Excerpt)), ExcerptLimit)
	}
}

// Braces inside strings confuse the candidate scan; the field extractor
// still recovers the action.
func TestBraceInsideStringFallsThrough(t *testing.T) {
	d, stage, err := Recover(`ok {"_metadata":"do","action":"Type","text":"a}b"}`)
	require.NoError(t, err)
	assert.Equal(t, StageExtract, stage)
	assert.Equal(t, VerbType, d.Verb)
	text, ok := d.Text()
	assert.True(t, ok)
	assert.Equal(t, "a}b", text)
}

func TestDescriptorPoint(t *testing.T) {
	d := Do(VerbTap, Field{"element", Array(Int(5))}, Field{"start", String("x")})

	_, err := d.Point("element")
	assert.Error(t, err)
	_, err = d.Point("start")
	assert.Error(t, err)
	_, err = d.Point("end")
	assert.ErrorIs(t, err, errMissingField)
	assert.False(t, d.HasPoint("element"))

	d = Do(VerbTap, Field{"element", Array(Float(1.5), Int(2), Int(3))})
	p, err := d.Point("element")
	require.NoError(t, err)
	assert.Equal(t, Point{X: 1.5, Y: 2}, p)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short", 10))
	assert.Equal(t, "abcdefg...", Excerpt("abcdefghijklmnop", 10))
	assert.Equal(t, 200, len([]rune(Excerpt(strings.Repeat("界", 500), ExcerptLimit))))
}

func TestExponentLiteral(t *testing.T) {
	d, err := Parse(`{"_metadata":"do","action":"Wait","duration":1e3,"scale":1.5e1,"ratio":5e-1}`)
	require.NoError(t, err)

	v, ok := d.Field("duration")
	require.True(t, ok)
	assert.True(t, v.IsInt())
	assert.Equal(t, "1000", v.String())

	v, _ = d.Field("scale")
	assert.False(t, v.IsInt(), "a decimal point makes a float")
	v, _ = d.Field("ratio")
	assert.False(t, v.IsInt())
}
