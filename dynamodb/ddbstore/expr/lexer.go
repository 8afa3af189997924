// Package expr evaluates the DynamoDB condition and update expressions the
// local store accepts.
//
// Supported condition syntax: comparisons (= <> < <= > >=), BETWEEN, IN,
// AND, OR, NOT, parentheses and the functions attribute_exists,
// attribute_not_exists, begins_with and contains.
//
// Supported update syntax: SET path = operand [(+|-) operand] and REMOVE path.
//
// Paths are attribute names, #name placeholders, or dotted paths into maps.
package expr

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// EvalInput holds the expression placeholders of a request.
type EvalInput struct {
	ExpressionNames  map[string]string
	ExpressionValues map[string]types.AttributeValue
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokValue // :placeholder
	tokOp    // = <> < <= > >= + -
	tokLParen
	tokRParen
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) is(keyword string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, keyword)
}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '.':
			toks = append(toks, token{tokDot, ".", i})
			i++
		case c == '=' || c == '+' || c == '-':
			toks = append(toks, token{tokOp, string(c), i})
			i++
		case c == '<':
			if i+1 < len(s) && (s[i+1] == '=' || s[i+1] == '>') {
				toks = append(toks, token{tokOp, s[i : i+2], i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, "<", i})
				i++
			}
		case c == '>':
			if i+1 < len(s) && s[i+1] == '=' {
				toks = append(toks, token{tokOp, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, ">", i})
				i++
			}
		case c == ':':
			start := i
			i++
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("empty value placeholder at position %d", start)
			}
			toks = append(toks, token{tokValue, s[start:i], start})
		case c == '#' || isWordByte(s[i]):
			start := i
			i++
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			toks = append(toks, token{tokIdent, s[start:i], start})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	return append(toks, token{tokEOF, "", len(s)}), nil
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// parser is shared by the condition and update grammars.
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s at position %d, got %q", what, t.pos, t.text)
	}
	return t, nil
}

// path is a parsed document path such as a.#b.c, with placeholders unresolved.
type path []string

func (p *parser) parsePath() (path, error) {
	t, err := p.expect(tokIdent, "attribute name")
	if err != nil {
		return nil, err
	}
	pa := path{t.text}
	for p.peek().kind == tokDot {
		p.next()
		t, err := p.expect(tokIdent, "attribute name")
		if err != nil {
			return nil, err
		}
		pa = append(pa, t.text)
	}
	return pa, nil
}

func (pa path) resolve(in EvalInput) ([]string, error) {
	names := make([]string, len(pa))
	for i, part := range pa {
		if !strings.HasPrefix(part, "#") {
			names[i] = part
			continue
		}
		name, ok := in.ExpressionNames[part]
		if !ok {
			return nil, fmt.Errorf("an expression attribute name used in the document path is not defined; attribute name: %s", part)
		}
		names[i] = name
	}
	return names, nil
}

// lookup returns the value at the path, or nil when it does not exist.
func lookup(item map[string]types.AttributeValue, names []string) types.AttributeValue {
	current := item
	for i, name := range names {
		av, ok := current[name]
		if !ok {
			return nil
		}
		if i == len(names)-1 {
			return av
		}
		m, ok := av.(*types.AttributeValueMemberM)
		if !ok {
			return nil
		}
		current = m.Value
	}
	return nil
}

// operand is either a document path or a :value placeholder.
type operand struct {
	path  path
	value string
}

func (p *parser) parseOperand() (operand, error) {
	if t := p.peek(); t.kind == tokValue {
		p.next()
		return operand{value: t.text}, nil
	}
	pa, err := p.parsePath()
	if err != nil {
		return operand{}, err
	}
	return operand{path: pa}, nil
}

func (o operand) eval(in EvalInput, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	if o.value != "" {
		av, ok := in.ExpressionValues[o.value]
		if !ok {
			return nil, fmt.Errorf("an expression attribute value used in expression is not defined; attribute value: %s", o.value)
		}
		return av, nil
	}
	names, err := o.path.resolve(in)
	if err != nil {
		return nil, err
	}
	return lookup(item, names), nil
}
