package action

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ExcerptLimit bounds the input excerpt carried by errors and logs
const ExcerptLimit = 200

// Stage records which recovery step produced a descriptor
type Stage int

const (
	StageNone Stage = iota
	StageDirect
	StageCandidate
	StageRepair
	StageExtract
)

func (s Stage) String() string {
	switch s {
	case StageDirect:
		return "direct"
	case StageCandidate:
		return "candidate"
	case StageRepair:
		return "repair"
	case StageExtract:
		return "extract"
	default:
		return "none"
	}
}

// ParseError means no stage could recover a descriptor
type ParseError struct {
	Reason  string
	Excerpt string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse action: %s (input: %q)", e.Reason, e.Excerpt)
}

func newParseError(raw, reason string) *ParseError {
	return &ParseError{Reason: reason, Excerpt: Excerpt(raw, ExcerptLimit)}
}

// Excerpt truncates s to at most limit runes, marking the cut with "...".
func Excerpt(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

// Parse recovers a descriptor from one raw model reply.
func Parse(raw string) (*Descriptor, error) {
	d, _, err := Recover(raw)
	return d, err
}

// Recover runs the staged recovery and reports which stage succeeded.
func Recover(raw string) (*Descriptor, Stage, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, StageNone, newParseError(raw, "empty input")
	}

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		if obj, ok := discriminated(text); ok {
			return build(raw, obj, StageDirect)
		}
	}

	for _, candidate := range braceCandidates(text) {
		if obj, ok := discriminated(candidate); ok {
			return build(raw, obj, StageCandidate)
		}
	}

	if js, ok := repair(text); ok {
		return build(raw, gjson.Parse(js), StageRepair)
	}

	if js, ok := extractFields(text); ok {
		return build(raw, gjson.Parse(js), StageExtract)
	}

	return nil, StageNone, newParseError(raw, "no action found")
}

func build(raw string, obj gjson.Result, stage Stage) (*Descriptor, Stage, error) {
	d, err := fromObject(obj)
	if err != nil {
		return nil, StageNone, newParseError(raw, err.Error())
	}
	return d, stage, nil
}

// discriminated validates s as an object literal carrying _metadata.
func discriminated(s string) (gjson.Result, bool) {
	if !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	obj := gjson.Parse(s)
	if !obj.IsObject() || !obj.Get(MetadataKey).Exists() {
		return gjson.Result{}, false
	}
	return obj, true
}

// braceCandidates returns every top-level {...} span, left to right.
// Braces inside string literals are counted like any other brace.
func braceCandidates(text string) []string {
	var out []string
	depth, start := 0, -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, text[start:i+1])
			}
		}
	}
	return out
}

func repair(text string) (string, bool) {
	if js, ok := repairCall(text); ok {
		return js, true
	}
	return repairPseudoJSON(text)
}

var (
	callPattern    = regexp.MustCompile(`(?i)\b(do|finish)\s*\(`)
	messageQuoted  = regexp.MustCompile(`(?s)message\s*=\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')`)
	messageBare    = regexp.MustCompile(`(?s)message\s*=\s*(.+)`)
	callParam      = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|\[[^\]]*\]|-?\d+(?:\.\d+)?|true|false)`)
	numericLiteral = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

// repairCall handles finish(message="...") and do(key=value, ...).
func repairCall(text string) (string, bool) {
	for _, loc := range callPattern.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToLower(text[loc[2]:loc[3]])
		args, ok := callArgs(text, loc[1]-1)
		if !ok {
			continue
		}
		if name == "finish" {
			return finishObject(args), true
		}
		if js, ok := doObject(args); ok {
			return js, true
		}
	}
	return "", false
}

// callArgs returns the text between the parenthesis at open and its match,
// skipping parentheses inside quoted strings.
func callArgs(text string, open int) (string, bool) {
	depth := 0
	var quote byte
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return text[open+1 : i], true
			}
		}
	}
	return "", false
}

func finishObject(args string) string {
	var msg string
	if m := messageQuoted.FindStringSubmatch(args); m != nil {
		if m[1] != "" || !strings.Contains(m[0], "'") {
			msg = unquoteDouble(m[1])
		} else {
			msg = unquoteSingle(m[2])
		}
	} else if m := messageBare.FindStringSubmatch(args); m != nil {
		msg = strings.TrimSpace(m[1])
	} else {
		msg = strings.Trim(strings.TrimSpace(args), `"'`)
	}
	js, _ := sjson.Set(`{"_metadata":"finish"}`, "message", msg)
	return js
}

func doObject(args string) (string, bool) {
	js := `{"_metadata":"do"}`
	params := callParam.FindAllStringSubmatch(args, -1)
	if len(params) == 0 {
		return "", false
	}
	for _, m := range params {
		key, raw := m[1], m[2]
		if key == MetadataKey {
			continue
		}
		var err error
		switch {
		case strings.HasPrefix(raw, `"`):
			js, err = sjson.Set(js, key, unquoteDouble(raw[1:len(raw)-1]))
		case strings.HasPrefix(raw, "'"):
			js, err = sjson.Set(js, key, unquoteSingle(raw[1:len(raw)-1]))
		case strings.HasPrefix(raw, "["):
			lit, ok := numericArray(raw)
			if !ok {
				continue
			}
			js, err = sjson.SetRaw(js, key, lit)
		default:
			js, err = sjson.SetRaw(js, key, raw)
		}
		if err != nil {
			return "", false
		}
	}
	return js, true
}

// numericArray normalizes "[ 1, 2.5 ]" to "[1,2.5]"; any non-number fails.
func numericArray(raw string) (string, bool) {
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if inner == "" {
		return "", false
	}
	parts := strings.Split(inner, ",")
	for i, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if !numericLiteral.MatchString(p) {
			return "", false
		}
		parts[i] = p
	}
	return "[" + strings.Join(parts, ",") + "]", true
}

func unquoteDouble(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}

func unquoteSingle(s string) string {
	return strings.ReplaceAll(s, `\'`, "'")
}

// recognizedFields are copied out of repaired objects, in this order.
var recognizedFields = []string{"text", "element", "start", "end", "message", "duration", "app"}

// repairPseudoJSON handles single-quoted objects, optionally wrapped in a list.
func repairPseudoJSON(text string) (string, bool) {
	body := text
	if strings.HasPrefix(body, "[") {
		body = strings.TrimSpace(strings.TrimPrefix(body, "["))
		body = strings.TrimSpace(strings.TrimSuffix(body, "]"))
	}
	if !strings.HasPrefix(body, "{") {
		return "", false
	}
	candidates := braceCandidates(strings.ReplaceAll(body, "'", `"`))
	if len(candidates) == 0 || !gjson.Valid(candidates[0]) {
		return "", false
	}
	obj := gjson.Parse(candidates[0])
	if !obj.IsObject() {
		return "", false
	}

	meta := "do"
	if m := obj.Get(MetadataKey); m.Type == gjson.String {
		meta = m.Str
	}
	js, _ := sjson.Set("{}", MetadataKey, meta)

	verb := obj.Get("action")
	if !verb.Exists() {
		verb = obj.Get("type")
	}
	if verb.Exists() {
		js, _ = sjson.Set(js, "action", verb.String())
	}

	found := verb.Exists()
	for _, name := range recognizedFields {
		r := obj.Get(name)
		if !r.Exists() {
			continue
		}
		var err error
		js, err = sjson.SetRaw(js, name, r.Raw)
		if err != nil {
			return "", false
		}
		found = true
	}
	return js, found
}

var (
	extractAction   = regexp.MustCompile(`(?i)["']?\b(?:action|type)["']?\s*[:=]\s*["']([^"']+)["']`)
	extractDuration = regexp.MustCompile(`(?i)["']?\bduration["']?\s*[:=]\s*(?:["']([^"']*)["']|(-?\d+(?:\.\d+)?))`)
	extractStrings  = map[string]*regexp.Regexp{
		"text":    regexp.MustCompile(`(?i)["']?\btext["']?\s*[:=]\s*["']([^"']*)["']`),
		"message": regexp.MustCompile(`(?i)["']?\bmessage["']?\s*[:=]\s*["']([^"']*)["']`),
		"app":     regexp.MustCompile(`(?i)["']?\bapp["']?\s*[:=]\s*["']([^"']*)["']`),
	}
	extractPoints = map[string]*regexp.Regexp{
		"element": regexp.MustCompile(`(?i)["']?\belement["']?\s*[:=]\s*(\[[^\]]*\])`),
		"start":   regexp.MustCompile(`(?i)["']?\bstart["']?\s*[:=]\s*(\[[^\]]*\])`),
		"end":     regexp.MustCompile(`(?i)["']?\bend["']?\s*[:=]\s*(\[[^\]]*\])`),
	}
)

// extractFields pulls known fields out of arbitrary text. A verb makes it
// a do action; a lone message makes it a finish.
func extractFields(text string) (string, bool) {
	js := "{}"
	verb := extractAction.FindStringSubmatch(text)
	if verb != nil {
		js, _ = sjson.Set(js, "action", verb[1])
	}

	for _, name := range recognizedFields {
		switch name {
		case "duration":
			if m := extractDuration.FindStringSubmatch(text); m != nil {
				if m[2] != "" {
					js, _ = sjson.SetRaw(js, name, m[2])
				} else {
					js, _ = sjson.Set(js, name, m[1])
				}
			}
		case "element", "start", "end":
			if m := extractPoints[name].FindStringSubmatch(text); m != nil {
				if lit, ok := numericArray(m[1]); ok {
					js, _ = sjson.SetRaw(js, name, lit)
				}
			}
		default:
			if m := extractStrings[name].FindStringSubmatch(text); m != nil {
				js, _ = sjson.Set(js, name, m[1])
			}
		}
	}

	meta := "do"
	if verb == nil {
		if !gjson.Get(js, "message").Exists() {
			return "", false
		}
		meta = "finish"
	}
	// Rebuild with the discriminator first.
	out, _ := sjson.Set("{}", MetadataKey, meta)
	gjson.Parse(js).ForEach(func(key, val gjson.Result) bool {
		out, _ = sjson.SetRaw(out, key.String(), val.Raw)
		return true
	})
	return out, true
}
