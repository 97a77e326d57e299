// Package kpi evaluates derived metric formulas, splits a unified table into
// the current and previous comparison periods, and aggregates each period by
// dimension tuple.
//
// Formulas are parsed once into a small expression tree and evaluated row by
// row; nothing is executed dynamically.
package kpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"insight/pkg/records"
)

// FormulaError reports a derived metric that cannot be compiled: a syntax
// error, an unknown or forward reference, or a name clash.
type FormulaError struct {
	Metric  string
	Formula string
	Msg     string
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("formula %q (%s): %s", e.Metric, e.Formula, e.Msg)
}

// Definition is a named formula as declared in configuration.
type Definition struct {
	Name    string
	Formula string
}

// Formula is a compiled derived metric.
type Formula struct {
	Name   string
	Source string
	// Refs lists referenced columns in first-use order.
	Refs []string
	root node
}

// Compile parses defs in declared order. A formula may reference base
// metrics and derived metrics declared before it; anything else is a
// *FormulaError.
func Compile(defs []Definition, base []string) ([]*Formula, error) {
	known := make(map[string]bool, len(base)+len(defs))
	for _, b := range base {
		known[b] = true
	}
	declared := make(map[string]bool, len(defs))
	for _, d := range defs {
		declared[d.Name] = true
	}

	out := make([]*Formula, 0, len(defs))
	for _, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, &FormulaError{Metric: d.Name, Formula: d.Formula, Msg: "derived metric name must not be empty"}
		}
		if known[d.Name] {
			return nil, &FormulaError{Metric: d.Name, Formula: d.Formula, Msg: "name is already a base or derived metric"}
		}
		f, err := Parse(d.Name, d.Formula)
		if err != nil {
			return nil, err
		}
		for _, ref := range f.Refs {
			if known[ref] {
				continue
			}
			msg := fmt.Sprintf("references undefined column %q", ref)
			if declared[ref] {
				msg = fmt.Sprintf("references %q before it is declared", ref)
			}
			return nil, &FormulaError{Metric: d.Name, Formula: d.Formula, Msg: msg}
		}
		known[d.Name] = true
		out = append(out, f)
	}
	return out, nil
}

// Parse compiles a single formula without checking its references.
func Parse(name, src string) (*Formula, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, &FormulaError{Metric: name, Formula: src, Msg: err.Error()}
	}
	p := &parser{toks: toks}
	root, err := p.expr()
	if err == nil && p.peek().kind != tokEOF {
		err = fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	if err != nil {
		return nil, &FormulaError{Metric: name, Formula: src, Msg: err.Error()}
	}
	f := &Formula{Name: name, Source: src, root: root}
	seen := map[string]bool{}
	root.refs(func(c string) {
		if !seen[c] {
			seen[c] = true
			f.Refs = append(f.Refs, c)
		}
	})
	return f, nil
}

// Eval evaluates f against r. ok is false when the result is null: a null
// operand, a zero or null denominator, or a non-finite result.
func (f *Formula) Eval(r records.Record) (float64, bool) {
	v, ok := f.root.eval(r)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ---- expression tree ----

type node interface {
	eval(r records.Record) (float64, bool)
	refs(fn func(string))
}

type numNode float64

func (n numNode) eval(records.Record) (float64, bool) { return float64(n), true }
func (numNode) refs(func(string))                     {}

type colNode string

func (c colNode) eval(r records.Record) (float64, bool) { return r.Float(string(c)) }
func (c colNode) refs(fn func(string))                  { fn(string(c)) }

type negNode struct{ x node }

func (n negNode) eval(r records.Record) (float64, bool) {
	v, ok := n.x.eval(r)
	return -v, ok
}
func (n negNode) refs(fn func(string)) { n.x.refs(fn) }

type binNode struct {
	op   byte
	l, r node
}

func (b binNode) eval(rec records.Record) (float64, bool) {
	l, lok := b.l.eval(rec)
	r, rok := b.r.eval(rec)
	if !lok || !rok {
		return 0, false
	}
	switch b.op {
	case '+':
		return l + r, true
	case '-':
		return l - r, true
	case '*':
		return l * r, true
	case '/':
		if r == 0 {
			return 0, false
		}
		return l / r, true
	}
	return 0, false
}

func (b binNode) refs(fn func(string)) {
	b.l.refs(fn)
	b.r.refs(fn)
}

// ---- lexer ----

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  float64
	op   byte
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{kind: tokOp, text: string(c), op: byte(c), pos: i})
			i++
		case c == '×':
			toks = append(toks, token{kind: tokOp, text: "×", op: '*', pos: i})
			i++
		case c == '÷':
			toks = append(toks, token{kind: tokOp, text: "÷", op: '/', pos: i})
			i++
		case unicode.IsDigit(c) || c == '.':
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			// exponent, e.g. 1e3 or 2.5E-2
			if j < len(rs) && (rs[j] == 'e' || rs[j] == 'E') {
				k := j + 1
				if k < len(rs) && (rs[k] == '+' || rs[k] == '-') {
					k++
				}
				if k < len(rs) && unicode.IsDigit(rs[k]) {
					for k < len(rs) && unicode.IsDigit(rs[k]) {
						k++
					}
					j = k
				}
			}
			text := string(rs[i:j])
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at offset %d", text, i)
			}
			toks = append(toks, token{kind: tokNum, text: text, num: f, pos: i})
			i = j
		case c == '_' || unicode.IsLetter(c):
			j := i
			for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[i:j]), pos: i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, text: "end of formula", pos: len(rs)})
	return toks, nil
}

// ---- recursive descent parser ----
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("-" | "+") unary | primary
//	primary = number | ident | "(" expr ")"

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) expr() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.op == '+' || t.op == '-'); t = p.peek() {
		p.next()
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = binNode{op: t.op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.op == '*' || t.op == '/'); t = p.peek() {
		p.next()
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binNode{op: t.op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) unary() (node, error) {
	if t := p.peek(); t.kind == tokOp && (t.op == '-' || t.op == '+') {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.op == '-' {
			return negNode{x: x}, nil
		}
		return x, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return numNode(t.num), nil
	case tokIdent:
		return colNode(t.text), nil
	case tokLParen:
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at offset %d, got %q", c.pos, c.text)
		}
		return x, nil
	}
	return nil, fmt.Errorf("expected a number, column, or '(' at offset %d, got %q", t.pos, t.text)
}
