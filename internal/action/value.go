package action

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// ValueKind identifies which variant a Value holds
type ValueKind int

const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindArray
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a single field value recovered from model output.
// Numbers remember whether their literal was written as an integer.
type Value struct {
	kind  ValueKind
	str   string
	i     int64
	f     float64
	isInt bool
	b     bool
	arr   []Value
}

// Point is a coordinate pair in the model's normalized [0,1000] space
type Point struct {
	X float64
	Y float64
}

func String(s string) Value { return Value{kind: KindString, str: s} }

func Int(n int64) Value { return Value{kind: KindNumber, i: n, f: float64(n), isInt: true} }

func Float(f float64) Value { return Value{kind: KindNumber, f: f} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value(nil), items...)}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsFloat returns any number as float64.
func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindNumber
}

// AsInt succeeds only for numbers written without a fractional part.
func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindNumber && v.isInt
}

func (v Value) IsInt() bool { return v.kind == KindNumber && v.isInt }

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsArray() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

// AsPoint reads an [x, y] array. Extra elements are ignored.
func (v Value) AsPoint() (Point, error) {
	items, ok := v.AsArray()
	if !ok {
		return Point{}, fmt.Errorf("expected [x, y], got %s", v.kind)
	}
	if len(items) < 2 {
		return Point{}, fmt.Errorf("expected [x, y], got %d element(s)", len(items))
	}
	x, okX := items[0].AsFloat()
	y, okY := items[1].AsFloat()
	if !okX || !okY {
		return Point{}, fmt.Errorf("coordinates must be numbers")
	}
	return Point{X: x, Y: y}, nil
}

// Equal reports deep equality, including integer/float identity.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		if v.isInt != o.isInt {
			return false
		}
		if v.isInt {
			return v.i == o.i
		}
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return true
}

func (v Value) String() string {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)
	v.write(stream)
	return string(stream.Buffer())
}

func (v Value) write(stream *jsoniter.Stream) {
	switch v.kind {
	case KindString:
		stream.WriteString(v.str)
	case KindNumber:
		if v.isInt {
			stream.WriteInt64(v.i)
			return
		}
		stream.WriteRaw(floatLiteral(v.f))
	case KindBool:
		stream.WriteBool(v.b)
	case KindArray:
		stream.WriteArrayStart()
		for i, item := range v.arr {
			if i > 0 {
				stream.WriteMore()
			}
			item.write(stream)
		}
		stream.WriteArrayEnd()
	default:
		stream.WriteNil()
	}
}

// floatLiteral always keeps a decimal point so the value reads back as a float.
func floatLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// numberLiteral applies the integer/float rule to a JSON number literal.
func numberLiteral(raw string) (Value, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, false
	}
	if !strings.ContainsAny(raw, ".eE") {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(n), true
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, false
	}
	// Only a decimal point makes a float; 1e3 stays an integer.
	if !strings.Contains(raw, ".") && f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return Int(int64(f)), true
	}
	return Float(f), true
}

// fromResult converts a gjson node. Objects and nulls have no Value form.
func fromResult(r gjson.Result) (Value, bool) {
	switch r.Type {
	case gjson.String:
		return String(r.Str), true
	case gjson.Number:
		return numberLiteral(r.Raw)
	case gjson.True:
		return Bool(true), true
	case gjson.False:
		return Bool(false), true
	case gjson.JSON:
		if !r.IsArray() {
			return Value{}, false
		}
		items := []Value{}
		ok := true
		r.ForEach(func(_, item gjson.Result) bool {
			v, good := fromResult(item)
			if !good {
				ok = false
				return false
			}
			items = append(items, v)
			return true
		})
		if !ok {
			return Value{}, false
		}
		return Value{kind: KindArray, arr: items}, true
	}
	return Value{}, false
}
