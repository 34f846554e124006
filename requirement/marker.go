package requirement

import (
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-pyresolve/selection/version"
)

// Env is a marker evaluation environment, keyed by marker variable name
// (python_version, sys_platform, extra, ...).
type Env map[string]string

// markerVariables are the variables a marker may reference.
var markerVariables = []string{
	"implementation_name", "implementation_version", "os_name",
	"platform_machine", "platform_python_implementation", "platform_release",
	"platform_system", "platform_version", "python_full_version",
	"python_version", "sys_platform", "extra",
	// Legacy dotted spellings.
	"os.name", "sys.platform", "platform.version", "platform.machine",
	"platform.python_implementation", "python_implementation",
}

var legacyVariables = map[string]string{
	"os.name":                        "os_name",
	"sys.platform":                   "sys_platform",
	"platform.version":               "platform_version",
	"platform.machine":               "platform_machine",
	"platform.python_implementation": "platform_python_implementation",
	"python_implementation":          "platform_python_implementation",
}

// Marker is a parsed environment marker expression.
type Marker struct {
	root markerNode
}

// String returns the canonical text of the marker.
func (m *Marker) String() string {
	if m == nil || m.root == nil {
		return ""
	}
	return m.root.String()
}

// Evaluate reports whether the marker holds in env. A nil marker always holds.
func (m *Marker) Evaluate(env Env) bool {
	if m == nil || m.root == nil {
		return true
	}
	return m.root.eval(env)
}

// EvaluateExtras evaluates the marker with "extra" bound to the empty
// string and then to each of extras, holding if any evaluation holds.
func (m *Marker) EvaluateExtras(env Env, extras []string) bool {
	if m == nil || m.root == nil {
		return true
	}
	local := make(Env, len(env)+1)
	for k, v := range env {
		local[k] = v
	}
	local["extra"] = ""
	if m.root.eval(local) {
		return true
	}
	for _, e := range extras {
		local["extra"] = e
		if m.root.eval(local) {
			return true
		}
	}
	return false
}

// ReferencesExtra reports whether the marker mentions the extra variable.
func (m *Marker) ReferencesExtra() bool {
	return m != nil && m.root != nil && referencesExtra(m.root)
}

func referencesExtra(n markerNode) bool {
	switch n := n.(type) {
	case markerBool:
		return referencesExtra(n.left) || referencesExtra(n.right)
	case markerCompare:
		return n.left.variable == "extra" || n.right.variable == "extra"
	}
	return false
}

type markerNode interface {
	eval(env Env) bool
	String() string
}

type markerBool struct {
	op          string // "and" or "or"
	left, right markerNode
}

func (n markerBool) eval(env Env) bool {
	if n.op == "and" {
		return n.left.eval(env) && n.right.eval(env)
	}
	return n.left.eval(env) || n.right.eval(env)
}

func (n markerBool) String() string {
	return wrap(n.left, n.op) + " " + n.op + " " + wrap(n.right, n.op)
}

// wrap parenthesizes an "or" nested under an "and".
func wrap(n markerNode, parent string) string {
	if b, ok := n.(markerBool); ok && b.op == "or" && parent == "and" {
		return "(" + b.String() + ")"
	}
	return n.String()
}

type markerValue struct {
	variable string
	literal  string
}

func (v markerValue) resolve(env Env) string {
	if v.variable == "" {
		return v.literal
	}
	return env[v.variable]
}

func (v markerValue) String() string {
	if v.variable != "" {
		return v.variable
	}
	if strings.Contains(v.literal, `"`) {
		return "'" + v.literal + "'"
	}
	return `"` + v.literal + `"`
}

type markerCompare struct {
	left  markerValue
	op    string
	right markerValue
}

func (n markerCompare) String() string {
	return n.left.String() + " " + n.op + " " + n.right.String()
}

func (n markerCompare) eval(env Env) bool {
	lhs, rhs := n.left.resolve(env), n.right.resolve(env)
	if n.left.variable == "extra" || n.right.variable == "extra" {
		lhs, rhs = Normalize(lhs), Normalize(rhs)
	}

	switch n.op {
	case "in":
		return strings.Contains(rhs, lhs)
	case "not in":
		return !strings.Contains(rhs, lhs)
	}

	if spec, err := version.ParseSpecifier(n.op + rhs); err == nil {
		if v, err := version.Parse(lhs); err == nil {
			return spec.Contains(v)
		}
	}

	switch n.op {
	case "==", "===":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	default:
		// Ordering comparisons on non-version strings are undefined.
		return false
	}
}

// ParseMarker parses a marker expression such as
// `python_version >= "3.8" and (sys_platform == "linux" or extra == "test")`.
func ParseMarker(s string) (*Marker, error) {
	p := &markerParser{}
	if err := p.lex(s); err != nil {
		return nil, err
	}
	if len(p.tokens) == 0 {
		return nil, fmt.Errorf("empty marker")
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q in marker", p.tokens[p.pos].text)
	}
	return &Marker{root: root}, nil
}

type tokenKind int

const (
	tokVariable tokenKind = iota
	tokString
	tokOp
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

type markerParser struct {
	tokens []token
	pos    int
}

var markerOps = []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"}

func (p *markerParser) lex(s string) error {
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			p.tokens = append(p.tokens, token{tokLParen, "("})
			i++
		case c == ')':
			p.tokens = append(p.tokens, token{tokRParen, ")"})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return fmt.Errorf("unterminated string in marker %q", s)
			}
			p.tokens = append(p.tokens, token{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("=!<>~", rune(c)):
			matched := ""
			for _, op := range markerOps {
				if strings.HasPrefix(s[i:], op) {
					matched = op
					break
				}
			}
			if matched == "" {
				return fmt.Errorf("invalid operator in marker %q", s)
			}
			p.tokens = append(p.tokens, token{tokOp, matched})
			i += len(matched)
		default:
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			if j == i {
				return fmt.Errorf("unexpected character %q in marker", s[i])
			}
			word := s[i:j]
			i = j
			switch word {
			case "and":
				p.tokens = append(p.tokens, token{tokAnd, word})
			case "or":
				p.tokens = append(p.tokens, token{tokOr, word})
			case "in":
				p.tokens = append(p.tokens, token{tokOp, "in"})
			case "not":
				rest := strings.TrimLeft(s[i:], " \t")
				if !strings.HasPrefix(rest, "in") || (len(rest) > 2 && isIdentByte(rest[2])) {
					return fmt.Errorf("expected 'in' after 'not' in marker %q", s)
				}
				i = len(s) - len(rest) + 2
				p.tokens = append(p.tokens, token{tokOp, "not in"})
			default:
				if !slices.Contains(markerVariables, word) {
					return fmt.Errorf("unknown marker variable %q", word)
				}
				if canonical, ok := legacyVariables[word]; ok {
					word = canonical
				}
				p.tokens = append(p.tokens, token{tokVariable, word})
			}
		}
	}
	return nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func (p *markerParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *markerParser) parseOr() (markerNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = markerBool{op: "or", left: left, right: right}
	}
}

func (p *markerParser) parseAnd() (markerNode, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = markerBool{op: "and", left: left, right: right}
	}
}

func (p *markerParser) parseAtom() (markerNode, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of marker")
	}
	if t.kind == tokLParen {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing, ok := p.peek(); !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis in marker")
		}
		p.pos++
		return inner, nil
	}

	left, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	op, ok := p.peek()
	if !ok || op.kind != tokOp {
		return nil, fmt.Errorf("expected comparison operator after %s", left)
	}
	p.pos++
	right, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return markerCompare{left: left, op: op.text, right: right}, nil
}

func (p *markerParser) parseValue() (markerValue, error) {
	t, ok := p.peek()
	if !ok {
		return markerValue{}, fmt.Errorf("unexpected end of marker")
	}
	switch t.kind {
	case tokVariable:
		p.pos++
		return markerValue{variable: t.text}, nil
	case tokString:
		p.pos++
		return markerValue{literal: t.text}, nil
	default:
		return markerValue{}, fmt.Errorf("expected variable or string, got %q", t.text)
	}
}
