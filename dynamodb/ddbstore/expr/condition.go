package expr

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition is a parsed condition or filter expression.
type Condition interface {
	Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error)
}

// ParseCondition parses a condition expression.
func ParseCondition(s string) (Condition, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid condition expression: %w", err)
	}
	p := &parser{toks: toks}
	cond, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("invalid condition expression: %w", err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("invalid condition expression: unexpected %q at position %d", t.text, t.pos)
	}
	return cond, nil
}

// EvalCondition parses and evaluates a condition expression against item.
// A nil item is treated as a missing item: every attribute is absent.
func EvalCondition(s string, in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	cond, err := ParseCondition(s)
	if err != nil {
		return false, err
	}
	return cond.Eval(in, item)
}

func (p *parser) parseOr() (Condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().is("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Condition, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().is("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseNot() (Condition, error) {
	if p.peek().is("NOT") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Condition, error) {
	t := p.peek()
	if t.kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	if t.kind == tokIdent && p.toks[p.pos+1].kind == tokLParen {
		return p.parseFunction()
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch t := p.next(); {
	case t.kind == tokOp && t.text != "+" && t.text != "-":
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareNode{op: t.text, left: left, right: right}, nil
	case t.is("BETWEEN"):
		lower, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if t := p.next(); !t.is("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN at position %d", t.pos)
		}
		upper, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return betweenNode{value: left, lower: lower, upper: upper}, nil
	case t.is("IN"):
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		var list []operand
		for {
			o, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			list = append(list, o)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inNode{value: left, list: list}, nil
	default:
		return nil, fmt.Errorf("expected comparison at position %d, got %q", t.pos, t.text)
	}
}

func (p *parser) parseFunction() (Condition, error) {
	name := strings.ToLower(p.next().text)
	p.next() // (

	var args []operand
	if p.peek().kind != tokRParen {
		for {
			o, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			args = append(args, o)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	want := map[string]int{
		"attribute_exists":     1,
		"attribute_not_exists": 1,
		"begins_with":          2,
		"contains":             2,
	}
	n, ok := want[name]
	if !ok {
		return nil, fmt.Errorf("unsupported function %q", name)
	}
	if len(args) != n {
		return nil, fmt.Errorf("function %s takes %d argument(s), got %d", name, n, len(args))
	}
	if (name == "attribute_exists" || name == "attribute_not_exists") && args[0].path == nil {
		return nil, fmt.Errorf("function %s needs a document path", name)
	}
	return funcNode{name: name, args: args}, nil
}

type orNode struct{ left, right Condition }

func (n orNode) Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	ok, err := n.left.Eval(in, item)
	if err != nil || ok {
		return ok, err
	}
	return n.right.Eval(in, item)
}

type andNode struct{ left, right Condition }

func (n andNode) Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	ok, err := n.left.Eval(in, item)
	if err != nil || !ok {
		return ok, err
	}
	return n.right.Eval(in, item)
}

type notNode struct{ inner Condition }

func (n notNode) Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	ok, err := n.inner.Eval(in, item)
	return !ok, err
}

type compareNode struct {
	op          string
	left, right operand
}

func (n compareNode) Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	l, err := n.left.eval(in, item)
	if err != nil {
		return false, err
	}
	r, err := n.right.eval(in, item)
	if err != nil {
		return false, err
	}
	switch n.op {
	case "=":
		return l != nil && r != nil && Equal(l, r), nil
	case "<>":
		return l == nil || r == nil || !Equal(l, r), nil
	}
	c, ok := compare(l, r)
	if !ok {
		return false, nil
	}
	switch n.op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	default:
		return false, fmt.Errorf("unsupported comparator %q", n.op)
	}
}

type betweenNode struct{ value, lower, upper operand }

func (n betweenNode) Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	v, err := n.value.eval(in, item)
	if err != nil {
		return false, err
	}
	lo, err := n.lower.eval(in, item)
	if err != nil {
		return false, err
	}
	hi, err := n.upper.eval(in, item)
	if err != nil {
		return false, err
	}
	c1, ok1 := compare(v, lo)
	c2, ok2 := compare(v, hi)
	return ok1 && ok2 && c1 >= 0 && c2 <= 0, nil
}

type inNode struct {
	value operand
	list  []operand
}

func (n inNode) Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	v, err := n.value.eval(in, item)
	if err != nil || v == nil {
		return false, err
	}
	for _, o := range n.list {
		candidate, err := o.eval(in, item)
		if err != nil {
			return false, err
		}
		if candidate != nil && Equal(v, candidate) {
			return true, nil
		}
	}
	return false, nil
}

type funcNode struct {
	name string
	args []operand
}

func (n funcNode) Eval(in EvalInput, item map[string]types.AttributeValue) (bool, error) {
	first, err := n.args[0].eval(in, item)
	if err != nil {
		return false, err
	}
	switch n.name {
	case "attribute_exists":
		return first != nil, nil
	case "attribute_not_exists":
		return first == nil, nil
	}

	second, err := n.args[1].eval(in, item)
	if err != nil {
		return false, err
	}
	switch n.name {
	case "begins_with":
		switch v := first.(type) {
		case *types.AttributeValueMemberS:
			prefix, ok := second.(*types.AttributeValueMemberS)
			return ok && strings.HasPrefix(v.Value, prefix.Value), nil
		case *types.AttributeValueMemberB:
			prefix, ok := second.(*types.AttributeValueMemberB)
			return ok && bytes.HasPrefix(v.Value, prefix.Value), nil
		}
		return false, nil
	case "contains":
		switch v := first.(type) {
		case *types.AttributeValueMemberS:
			sub, ok := second.(*types.AttributeValueMemberS)
			return ok && strings.Contains(v.Value, sub.Value), nil
		case *types.AttributeValueMemberSS:
			sub, ok := second.(*types.AttributeValueMemberS)
			return ok && containsString(v.Value, sub.Value), nil
		case *types.AttributeValueMemberNS:
			sub, ok := second.(*types.AttributeValueMemberN)
			if !ok {
				return false, nil
			}
			for _, n := range v.Value {
				if Equal(&types.AttributeValueMemberN{Value: n}, sub) {
					return true, nil
				}
			}
			return false, nil
		case *types.AttributeValueMemberL:
			for _, elem := range v.Value {
				if second != nil && Equal(elem, second) {
					return true, nil
				}
			}
			return false, nil
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported function %q", n.name)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Equal reports whether two attribute values are equal. Numbers compare by value.
func Equal(a, b types.AttributeValue) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalar values of the same type. ok is false when the values
// are not comparable (missing, different types, or non-scalar).
func compare(a, b types.AttributeValue) (c int, ok bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(av.Value, bv.Value), true
		}
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			x, errX := parseNumber(av.Value)
			y, errY := parseNumber(bv.Value)
			if errX != nil || errY != nil {
				return 0, false
			}
			return x.Cmp(y), true
		}
	case *types.AttributeValueMemberB:
		if bv, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Compare(av.Value, bv.Value), true
		}
	}
	return 0, false
}

func parseNumber(s string) (*big.Float, error) {
	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	return f, err
}
