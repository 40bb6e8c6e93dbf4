package action

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// MetadataKey is the discriminator field of the wire format
const MetadataKey = "_metadata"

// Kind distinguishes terminal descriptors from executable ones
type Kind int

const (
	KindDo Kind = iota + 1
	KindFinish
)

func (k Kind) String() string {
	switch k {
	case KindDo:
		return "do"
	case KindFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Verb names an executable action
type Verb string

const (
	VerbLaunch    Verb = "Launch"
	VerbTap       Verb = "Tap"
	VerbType      Verb = "Type"
	VerbSwipe     Verb = "Swipe"
	VerbBack      Verb = "Back"
	VerbHome      Verb = "Home"
	VerbLongPress Verb = "LongPress"
	VerbDoubleTap Verb = "DoubleTap"
	VerbWait      Verb = "Wait"
)

var knownVerbs = map[string]Verb{
	"launch":    VerbLaunch,
	"tap":       VerbTap,
	"type":      VerbType,
	"swipe":     VerbSwipe,
	"back":      VerbBack,
	"home":      VerbHome,
	"longpress": VerbLongPress,
	"doubletap": VerbDoubleTap,
	"wait":      VerbWait,
}

// ParseVerb folds case and separators ("long press", "Long_Press").
// Unknown verbs are returned trimmed but otherwise untouched.
func ParseVerb(s string) Verb {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	if v, ok := knownVerbs[key]; ok {
		return v
	}
	return Verb(strings.TrimSpace(s))
}

// Known reports whether v is one of the dispatchable verbs.
func (v Verb) Known() bool {
	_, ok := knownVerbs[strings.ToLower(string(v))]
	return ok
}

// Field is one named value of a descriptor, kept in source order
type Field struct {
	Name  string
	Value Value
}

// Descriptor is the typed form of one model turn.
// Fields never contain the discriminator or the verb.
type Descriptor struct {
	Kind   Kind
	Verb   Verb
	Fields []Field
}

var errMissingField = errors.New("missing field")

// Finish builds a terminal descriptor.
func Finish(message string) *Descriptor {
	return &Descriptor{Kind: KindFinish, Fields: []Field{{Name: "message", Value: String(message)}}}
}

// Do builds an executable descriptor.
func Do(verb Verb, fields ...Field) *Descriptor {
	return &Descriptor{Kind: KindDo, Verb: verb, Fields: fields}
}

func (d *Descriptor) Field(name string) (Value, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (d *Descriptor) stringField(name string) (string, bool) {
	v, ok := d.Field(name)
	if !ok {
		return "", false
	}
	s, ok := v.AsString()
	if !ok {
		// Models occasionally emit numbers for text fields.
		if v.Kind() == KindNumber || v.Kind() == KindBool {
			return v.String(), true
		}
		return "", false
	}
	return s, true
}

func (d *Descriptor) Message() string {
	s, _ := d.stringField("message")
	return s
}

func (d *Descriptor) App() (string, bool) { return d.nonEmpty("app") }

func (d *Descriptor) Text() (string, bool) { return d.nonEmpty("text") }

func (d *Descriptor) nonEmpty(name string) (string, bool) {
	s, ok := d.stringField(name)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Point reads a normalized [x, y] field such as element, start or end.
func (d *Descriptor) Point(name string) (Point, error) {
	v, ok := d.Field(name)
	if !ok {
		return Point{}, fmt.Errorf("%s: %w", name, errMissingField)
	}
	p, err := v.AsPoint()
	if err != nil {
		return Point{}, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// HasPoint reports whether name holds a usable coordinate pair.
func (d *Descriptor) HasPoint(name string) bool {
	_, err := d.Point(name)
	return err == nil
}

// DurationMillis resolves the duration field, see ParseDurationMillis.
func (d *Descriptor) DurationMillis() int64 {
	v, ok := d.Field("duration")
	return ParseDurationMillis(v, ok)
}

// MarshalJSON writes the canonical wire object: discriminator, verb, then
// the remaining fields in source order.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	cfg := jsoniter.ConfigCompatibleWithStandardLibrary
	stream := cfg.BorrowStream(nil)
	defer cfg.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField(MetadataKey)
	stream.WriteString(d.Kind.String())
	if d.Kind == KindDo && d.Verb != "" {
		stream.WriteMore()
		stream.WriteObjectField("action")
		stream.WriteString(string(d.Verb))
	}
	for _, f := range d.Fields {
		stream.WriteMore()
		stream.WriteObjectField(f.Name)
		f.Value.write(stream)
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (d *Descriptor) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s %s>", d.Kind, d.Verb)
	}
	return string(b)
}

// fromObject converts a discriminated object into a Descriptor.
func fromObject(obj gjson.Result) (*Descriptor, error) {
	meta := obj.Get(MetadataKey)
	d := &Descriptor{}
	switch strings.ToLower(strings.TrimSpace(meta.String())) {
	case "do":
		d.Kind = KindDo
	case "finish":
		d.Kind = KindFinish
	default:
		return nil, fmt.Errorf("unknown %s value %q", MetadataKey, meta.String())
	}

	seen := make(map[string]bool)
	obj.ForEach(func(key, val gjson.Result) bool {
		name := key.String()
		if name == MetadataKey || seen[name] {
			return true
		}
		seen[name] = true
		if name == "action" && d.Kind == KindDo {
			d.Verb = ParseVerb(val.String())
			return true
		}
		if v, ok := fromResult(val); ok {
			d.Fields = append(d.Fields, Field{Name: name, Value: v})
		}
		return true
	})
	return d, nil
}
