package grading

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// FormulaErrorKind classifies formula failures.
type FormulaErrorKind string

const (
	FormulaSyntax          FormulaErrorKind = "syntax"
	FormulaMissingVariable FormulaErrorKind = "missing_variable"
	FormulaDivisionByZero  FormulaErrorKind = "division_by_zero"
)

// FormulaError is returned by ParseFormula and Formula.Evaluate. Offset is a byte offset
// into the formula source.
type FormulaError struct {
	Kind     FormulaErrorKind
	Offset   int
	Variable string
	Message  string
}

// Error implements the error interface.
func (e *FormulaError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("formula error at offset %d: %s %q", e.Offset, e.Message, e.Variable)
	}
	return fmt.Sprintf("formula error at offset %d: %s", e.Offset, e.Message)
}

// Formula is a compiled arithmetic expression. It is immutable and safe for concurrent use.
type Formula struct {
	source    string
	root      node
	variables []string
}

// Source returns the text the formula was compiled from.
func (f *Formula) Source() string { return f.source }

// Variables lists the referenced names in order of first appearance.
func (f *Formula) Variables() []string {
	out := make([]string, len(f.variables))
	copy(out, f.variables)
	return out
}

// Evaluate computes the formula against scope. Every referenced variable must be present.
func (f *Formula) Evaluate(scope map[string]float64) (float64, error) {
	return f.root.eval(scope)
}

// ParseFormula compiles expressions built from numbers, identifiers, + - * / and parentheses.
// Anything else, including unary operators, is rejected.
func ParseFormula(source string) (*Formula, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, syntaxError(0, "empty expression")
	}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, syntaxError(tok.offset, "unbalanced ')'")
		}
		return nil, syntaxError(tok.offset, fmt.Sprintf("unexpected %s", tok.describe()))
	}
	return &Formula{source: source, root: root, variables: p.variables}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOperator
	tokLParen
	tokRParen
)

type token struct {
	kind   tokenKind
	text   string
	value  float64
	offset int
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return fmt.Sprintf("number %s", t.text)
	case tokIdent:
		return fmt.Sprintf("identifier %s", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func tokenize(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case isDigit(ch):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i < len(src) && src[i] == '.' {
				i++
				if i >= len(src) || !isDigit(src[i]) {
					return nil, syntaxError(start, "malformed number")
				}
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			text := src[start:i]
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, syntaxError(start, "malformed number")
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, value: value, offset: start})
		case isIdentStart(ch):
			start := i
			for i < len(src) && (isIdentStart(src[i]) || isDigit(src[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], offset: start})
		case ch == '+' || ch == '-' || ch == '*' || ch == '/':
			tokens = append(tokens, token{kind: tokOperator, text: string(ch), offset: i})
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", offset: i})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", offset: i})
			i++
		default:
			r, _ := utf8.DecodeRuneInString(src[i:])
			return nil, syntaxError(i, fmt.Sprintf("unexpected character %q", r))
		}
	}
	return append(tokens, token{kind: tokEOF, offset: len(src)}), nil
}

type parser struct {
	tokens    []token
	pos       int
	variables []string
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOperator || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.text[0], left: left, right: right, offset: tok.offset}
	}
}

// term := factor (('*' | '/') factor)*
func (p *parser) term() (node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOperator || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.text[0], left: left, right: right, offset: tok.offset}
	}
}

// factor := NUMBER | IDENT | '(' expr ')'
func (p *parser) factor() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return numberNode(tok.value), nil
	case tokIdent:
		p.track(tok.text)
		return &variableNode{name: tok.text, offset: tok.offset}, nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.peek(); closing.kind != tokRParen {
			if closing.kind == tokEOF {
				return nil, syntaxError(tok.offset, "unbalanced '(': missing ')'")
			}
			return nil, syntaxError(closing.offset, fmt.Sprintf("expected ')' but found %s", closing.describe()))
		}
		p.next()
		return inner, nil
	case tokEOF:
		return nil, syntaxError(tok.offset, "unexpected end of expression")
	case tokRParen:
		return nil, syntaxError(tok.offset, "unbalanced ')'")
	default:
		return nil, syntaxError(tok.offset, fmt.Sprintf("unexpected %s", tok.describe()))
	}
}

func (p *parser) track(name string) {
	for _, v := range p.variables {
		if v == name {
			return
		}
	}
	p.variables = append(p.variables, name)
}

type node interface {
	eval(scope map[string]float64) (float64, error)
}

type numberNode float64

func (n numberNode) eval(map[string]float64) (float64, error) { return float64(n), nil }

type variableNode struct {
	name   string
	offset int
}

func (n *variableNode) eval(scope map[string]float64) (float64, error) {
	value, ok := scope[n.name]
	if !ok {
		return 0, &FormulaError{Kind: FormulaMissingVariable, Offset: n.offset, Variable: n.name, Message: "unknown variable"}
	}
	return value, nil
}

type binaryNode struct {
	op     byte
	left   node
	right  node
	offset int
}

func (n *binaryNode) eval(scope map[string]float64) (float64, error) {
	left, err := n.left.eval(scope)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(scope)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return left + right, nil
	case '-':
		return left - right, nil
	case '*':
		return left * right, nil
	default:
		if right == 0 {
			return 0, &FormulaError{Kind: FormulaDivisionByZero, Offset: n.offset, Message: "division by zero"}
		}
		return left / right, nil
	}
}

func syntaxError(offset int, message string) *FormulaError {
	return &FormulaError{Kind: FormulaSyntax, Offset: offset, Message: message}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
