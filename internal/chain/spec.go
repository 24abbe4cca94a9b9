package chain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrParse is matched by every chain specification syntax error
var ErrParse = errors.New("invalid chain specification")

// Param is an attribute assignment for one stage
type Param struct {
	Name   string
	Values []string
}

// Stage is one plugin of a chain specification
type Stage struct {
	// Name is the registry name of the plugin
	Name string
	// Instance names the plugin inside the chain; it defaults to Name
	Instance string
	Params   []Param
}

// String formats the stage in specification syntax
func (s Stage) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if s.Instance != "" && s.Instance != s.Name {
		fmt.Fprintf(&b, "(%s)", s.Instance)
	}
	if len(s.Params) > 0 {
		b.WriteByte('{')
		for i, p := range s.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
			b.WriteByte('=')
			for j, v := range p.Values {
				if j > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(quote(v))
			}
		}
		b.WriteByte('}')
	}
	return b.String()
}

func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n,{}\"'") {
		return v
	}
	return `"` + v + `"`
}

// Format joins stages back into a specification
func Format(stages []Stage) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, ":")
}

// ParseError locates a syntax error in a specification
type ParseError struct {
	Spec string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d in %q", ErrParse, e.Msg, e.Pos, e.Spec)
}

// Unwrap makes every ParseError match ErrParse
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// Parse splits a specification such as
//
//	slice(frame){size=1024, hop=256}:fft:bands{mode=mel}
//
// into its stages. Instance names must be unique within the chain.
func Parse(spec string) ([]Stage, error) {
	p := &parser{src: spec}

	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("empty chain")
	}

	var stages []Stage
	seen := make(map[string]bool)
	for {
		start := p.pos
		st, err := p.stage()
		if err != nil {
			return nil, err
		}
		if seen[st.Instance] {
			return nil, &ParseError{Spec: spec, Pos: start, Msg: fmt.Sprintf("duplicate instance name %q", st.Instance)}
		}
		seen[st.Instance] = true
		stages = append(stages, st)

		p.skipSpace()
		if p.eof() {
			return stages, nil
		}
		if !p.consume(':') {
			return nil, p.errorf("expected ':' between stages, found %q", p.peek())
		}
	}
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Spec: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) consume(c byte) bool {
	if p.peek() == c && !p.eof() {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func isIdent(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-'
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() && isIdent(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) stage() (Stage, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return Stage{}, p.errorf("expected plugin name")
	}
	st := Stage{Name: name, Instance: name}

	p.skipSpace()
	if p.consume('(') {
		p.skipSpace()
		st.Instance = p.ident()
		if st.Instance == "" {
			return Stage{}, p.errorf("expected instance name")
		}
		p.skipSpace()
		if !p.consume(')') {
			return Stage{}, p.errorf("expected ')' after instance name")
		}
		p.skipSpace()
	}

	if p.consume('{') {
		params, err := p.params()
		if err != nil {
			return Stage{}, err
		}
		st.Params = params
	}
	return st, nil
}

func (p *parser) params() ([]Param, error) {
	var params []Param

	p.skipSpace()
	if p.consume('}') {
		return params, nil
	}

	for {
		p.skipSpace()
		key := p.ident()
		if key == "" {
			return nil, p.errorf("expected attribute name")
		}
		p.skipSpace()
		if !p.consume('=') {
			return nil, p.errorf("expected '=' after attribute %s", key)
		}

		var values []string
		for {
			p.skipSpace()
			if c := p.peek(); p.eof() || c == ',' || c == '}' {
				break
			}
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return nil, p.errorf("attribute %s has no value", key)
		}
		params = append(params, Param{Name: key, Values: values})

		if p.consume(',') {
			continue
		}
		if p.consume('}') {
			return params, nil
		}
		return nil, p.errorf("unterminated attribute list")
	}
}

func (p *parser) value() (string, error) {
	if q := p.peek(); q == '"' || q == '\'' {
		start := p.pos
		p.pos++
		end := strings.IndexByte(p.src[p.pos:], q)
		if end < 0 {
			p.pos = start
			return "", p.errorf("unterminated quoted value")
		}
		v := p.src[p.pos : p.pos+end]
		p.pos += end + 1
		return v, nil
	}

	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if unicode.IsSpace(rune(c)) || c == ',' || c == '}' || c == '{' || c == '"' || c == '\'' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("unexpected character %q", p.peek())
	}
	return p.src[start:p.pos], nil
}
