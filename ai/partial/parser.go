// Package partial decodes the longest well-formed prefix of a JSON document.
//
// Model output arrives token by token, so the text seen mid-stream is almost
// never valid JSON. Parse recovers the value that prefix already commits to:
//
//   - strings are cut at the last complete character;
//   - an object surfaces every member whose key is complete and whose value has
//     started, the last one possibly partial;
//   - an array surfaces an element only once that element is closed, so a
//     half-written record never reaches the caller and no element is ever
//     retracted as the prefix grows.
package partial

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Parse returns the best-effort value for text, or ok=false when the text does
// not start with anything representable (empty input, garbage, a bare "tru").
// Values are map[string]any, []any, string, float64, bool or nil.
func Parse(text string) (value any, ok bool) {
	p := &parser{s: text}
	v, _, ok := p.value()
	if !ok {
		return nil, false
	}
	return v, true
}

type parser struct {
	s string
	i int
}

func (p *parser) eof() bool {
	return p.i >= len(p.s)
}

func (p *parser) skipSpace() {
	for p.i < len(p.s) {
		switch p.s[p.i] {
		case ' ', '\t', '\n', '\r':
			p.i++
		default:
			return
		}
	}
}

// value parses one value. complete reports whether its end was seen; ok
// whether anything usable was produced.
func (p *parser) value() (v any, complete bool, ok bool) {
	p.skipSpace()
	if p.eof() {
		return nil, false, false
	}
	switch c := p.s[p.i]; {
	case c == '{':
		obj, complete := p.object()
		return obj, complete, true
	case c == '[':
		arr, complete := p.array()
		return arr, complete, true
	case c == '"':
		str, complete := p.str()
		return str, complete, true
	case c == 't':
		return p.literal("true", true)
	case c == 'f':
		return p.literal("false", false)
	case c == 'n':
		return p.literal("null", nil)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return nil, false, false
	}
}

func (p *parser) object() (map[string]any, bool) {
	obj := map[string]any{}
	p.i++ // {
	for {
		p.skipSpace()
		if p.eof() {
			return obj, false
		}
		if p.s[p.i] == '}' {
			p.i++
			return obj, true
		}
		if p.s[p.i] != '"' {
			return obj, false
		}
		key, keyDone := p.str()
		if !keyDone {
			return obj, false
		}

		p.skipSpace()
		if p.eof() || p.s[p.i] != ':' {
			return obj, false
		}
		p.i++

		v, complete, ok := p.value()
		if !ok {
			return obj, false
		}
		obj[key] = v
		if !complete {
			return obj, false
		}

		p.skipSpace()
		if p.eof() {
			return obj, false
		}
		switch p.s[p.i] {
		case ',':
			p.i++
		case '}':
			p.i++
			return obj, true
		default:
			return obj, false
		}
	}
}

func (p *parser) array() ([]any, bool) {
	arr := []any{}
	p.i++ // [
	for {
		p.skipSpace()
		if p.eof() {
			return arr, false
		}
		if p.s[p.i] == ']' {
			p.i++
			return arr, true
		}

		v, complete, ok := p.value()
		if !ok || !complete {
			// the trailing element is still being written
			return arr, false
		}
		arr = append(arr, v)

		p.skipSpace()
		if p.eof() {
			return arr, false
		}
		switch p.s[p.i] {
		case ',':
			p.i++
		case ']':
			p.i++
			return arr, true
		default:
			return arr, false
		}
	}
}

func (p *parser) str() (string, bool) {
	var b strings.Builder
	p.i++ // opening quote
	for p.i < len(p.s) {
		c := p.s[p.i]
		switch {
		case c == '"':
			p.i++
			return b.String(), true
		case c == '\\':
			r, width, ok := unescape(p.s[p.i:])
			if !ok {
				p.i = len(p.s)
				return b.String(), false
			}
			b.WriteRune(r)
			p.i += width
		case c < utf8.RuneSelf:
			b.WriteByte(c)
			p.i++
		default:
			r, width := utf8.DecodeRuneInString(p.s[p.i:])
			if r == utf8.RuneError && width <= 1 && !utf8.FullRuneInString(p.s[p.i:]) {
				// a multi-byte character split across chunks
				p.i = len(p.s)
				return b.String(), false
			}
			b.WriteString(p.s[p.i : p.i+width])
			p.i += width
		}
	}
	return b.String(), false
}

// unescape decodes one escape sequence at the start of s. ok is false when
// the sequence is truncated or invalid.
func unescape(s string) (r rune, width int, ok bool) {
	if len(s) < 2 {
		return 0, 0, false
	}
	switch s[1] {
	case '"', '\\', '/':
		return rune(s[1]), 2, true
	case 'b':
		return '\b', 2, true
	case 'f':
		return '\f', 2, true
	case 'n':
		return '\n', 2, true
	case 'r':
		return '\r', 2, true
	case 't':
		return '\t', 2, true
	case 'u':
		r1, ok := hex4(s[2:])
		if !ok {
			return 0, 0, false
		}
		if !utf16.IsSurrogate(r1) {
			return r1, 6, true
		}
		// surrogate pair: wait for the low half
		if len(s) < 8 {
			return 0, 0, false
		}
		if s[6] != '\\' || s[7] != 'u' {
			return utf8.RuneError, 6, true
		}
		r2, ok := hex4(s[8:])
		if !ok {
			if len(s) < 12 {
				return 0, 0, false
			}
			return utf8.RuneError, 6, true
		}
		if r := utf16.DecodeRune(r1, r2); r != utf8.RuneError {
			return r, 12, true
		}
		return utf8.RuneError, 6, true
	default:
		return 0, 0, false
	}
}

func hex4(s string) (rune, bool) {
	if len(s) < 4 {
		return 0, false
	}
	n, err := strconv.ParseUint(s[:4], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(n), true
}

func (p *parser) literal(word string, v any) (any, bool, bool) {
	rest := p.s[p.i:]
	if strings.HasPrefix(rest, word) {
		p.i += len(word)
		return v, true, true
	}
	// a truncated literal ("tru") is not surfaced
	p.i = len(p.s)
	return nil, false, false
}

func (p *parser) number() (any, bool, bool) {
	start := p.i
	if p.s[p.i] == '-' {
		p.i++
	}
	p.digits()
	if !p.eof() && p.s[p.i] == '.' {
		p.i++
		p.digits()
	}
	if !p.eof() && (p.s[p.i] == 'e' || p.s[p.i] == 'E') {
		p.i++
		if !p.eof() && (p.s[p.i] == '+' || p.s[p.i] == '-') {
			p.i++
		}
		p.digits()
	}

	// A number only ends at the next non-number byte; at end of input more
	// digits may still follow.
	complete := !p.eof()

	f, ok := parseNumberPrefix(p.s[start:p.i])
	if !ok {
		return nil, false, false
	}
	return f, complete, true
}

func (p *parser) digits() {
	for p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
		p.i++
	}
}

// parseNumberPrefix parses the longest numeric prefix of lit, which may end
// in a dangling "-", "." or exponent marker.
func parseNumberPrefix(lit string) (float64, bool) {
	for len(lit) > 0 {
		if f, err := strconv.ParseFloat(lit, 64); err == nil {
			return f, true
		}
		lit = lit[:len(lit)-1]
	}
	return 0, false
}
