// Package parse reads migration scripts back into structured operations. It
// never evaluates script text: a recursive-descent parser handles data
// literals and a statement scanner recognizes the fixed vocabulary of calls
// the generator emits.
package parse

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseValue parses a single data literal: object, array, string, number,
// boolean or null. Object keys may be quoted (single or double) or bare;
// trailing commas and // and /* */ comments are tolerated because
// hand-written migration files contain them.
func ParseValue(src string) (any, error) {
	p := &literalParser{src: src}
	p.skipSpace()
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return value, nil
}

// literalParser is a cursor over the literal source. It only understands the
// literal-only grammar; anything that looks like code is a parse error.
type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("literal parse error at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
			end := strings.Index(p.src[p.pos+2:], "*/")
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += end + 4
		default:
			return
		}
	}
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) parseValue() (any, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"' || c == '\'':
		return p.parseString()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return p.parseKeyword()
	}
}

func (p *literalParser) parseObject() (map[string]any, error) {
	p.pos++ // consume '{'
	obj := map[string]any{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after object key %q", key)
		}
		p.pos++
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		obj[key] = value

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected ',' or '}' in object")
		}
	}
}

func (p *literalParser) parseKey() (string, error) {
	p.skipSpace()
	if c := p.peek(); c == '"' || c == '\'' {
		return p.parseString()
	}
	start := p.pos
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' {
			break
		}
		p.pos += size
	}
	if p.pos == start {
		return "", p.errorf("expected object key")
	}
	return p.src[start:p.pos], nil
}

func (p *literalParser) parseArray() ([]any, error) {
	p.pos++ // consume '['
	arr := []any{}
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return arr, nil
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, value)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, p.errorf("expected ',' or ']' in array")
		}
	}
}

func (p *literalParser) parseString() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case quote:
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape sequence")
			}
			esc := p.src[p.pos]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'u':
				if p.pos+4 >= len(p.src) {
					return "", p.errorf("truncated unicode escape")
				}
				code, err := strconv.ParseUint(p.src[p.pos+1:p.pos+5], 16, 32)
				if err != nil {
					return "", p.errorf("invalid unicode escape")
				}
				sb.WriteRune(rune(code))
				p.pos += 4
			default:
				sb.WriteByte(esc)
			}
			p.pos++
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) parseNumber() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' ||
			((c == '-' || c == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	text := p.src[start:p.pos]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return value, nil
}

func (p *literalParser) parseKeyword() (any, error) {
	switch {
	case strings.HasPrefix(p.src[p.pos:], "true"):
		p.pos += 4
		return true, nil
	case strings.HasPrefix(p.src[p.pos:], "false"):
		p.pos += 5
		return false, nil
	case strings.HasPrefix(p.src[p.pos:], "null"):
		p.pos += 4
		return nil, nil
	case strings.HasPrefix(p.src[p.pos:], "undefined"):
		p.pos += 9
		return nil, nil
	default:
		if call, ok := p.parseCallExpr(); ok {
			return call, nil
		}
		return nil, p.errorf("unexpected character %q", p.peek())
	}
}

// parseCallExpr captures a call expression such as
// app.findCollectionByNameOrId("posts") as its raw source text. Generated
// scripts use such calls as relation target values when no id is known at
// generation time; downstream conversion resolves the text back to a name.
func (p *literalParser) parseCallExpr() (string, bool) {
	start := p.pos
	i := p.pos
	for i < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[i:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' && r != '.' {
			break
		}
		i += size
	}
	if i == start || i >= len(p.src) || p.src[i] != '(' {
		return "", false
	}
	args, next := extractBalanced(p.src, i, '(', ')')
	if next < 0 {
		return "", false
	}
	p.pos = next
	return p.src[start:i] + args, true
}

// extractBalanced returns the text of a balanced bracket pair starting at
// the first occurrence of open at or after from, honoring strings. Returns
// the extracted text including brackets and the index just past it, or -1.
func extractBalanced(src string, from int, open, close byte) (string, int) {
	start := -1
	for i := from; i < len(src); i++ {
		if src[i] == open {
			start = i
			break
		}
	}
	if start < 0 {
		return "", -1
	}
	depth := 0
	var quote byte
	for i := start; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return src[start : i+1], i + 1
			}
		}
	}
	return "", -1
}
