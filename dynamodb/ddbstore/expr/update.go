package expr

import (
	"fmt"
	"maps"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Update is a parsed update expression.
type Update struct {
	sets    []setAction
	removes []path
}

type setAction struct {
	target path
	left   operand
	op     string // "", "+" or "-"
	right  operand
}

// ParseUpdate parses an update expression made of SET and REMOVE clauses.
func ParseUpdate(s string) (*Update, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid update expression: %w", err)
	}
	p := &parser{toks: toks}
	u := &Update{}

	for p.peek().kind != tokEOF {
		clause := p.next()
		switch {
		case clause.is("SET"):
			if err := p.parseSetClause(u); err != nil {
				return nil, fmt.Errorf("invalid update expression: %w", err)
			}
		case clause.is("REMOVE"):
			if err := p.parseRemoveClause(u); err != nil {
				return nil, fmt.Errorf("invalid update expression: %w", err)
			}
		case clause.is("ADD"), clause.is("DELETE"):
			return nil, fmt.Errorf("invalid update expression: %s clauses are not supported by the local store", clause.text)
		default:
			return nil, fmt.Errorf("invalid update expression: unexpected %q at position %d", clause.text, clause.pos)
		}
	}
	if len(u.sets) == 0 && len(u.removes) == 0 {
		return nil, fmt.Errorf("invalid update expression: empty expression")
	}
	return u, nil
}

func (p *parser) parseSetClause(u *Update) error {
	for {
		target, err := p.parsePath()
		if err != nil {
			return err
		}
		if t := p.next(); t.kind != tokOp || t.text != "=" {
			return fmt.Errorf("expected '=' at position %d, got %q", t.pos, t.text)
		}
		left, err := p.parseOperand()
		if err != nil {
			return err
		}
		action := setAction{target: target, left: left}
		if t := p.peek(); t.kind == tokOp && (t.text == "+" || t.text == "-") {
			p.next()
			action.op = t.text
			if action.right, err = p.parseOperand(); err != nil {
				return err
			}
		}
		u.sets = append(u.sets, action)

		if p.peek().kind != tokComma {
			return nil
		}
		p.next()
	}
}

func (p *parser) parseRemoveClause(u *Update) error {
	for {
		target, err := p.parsePath()
		if err != nil {
			return err
		}
		u.removes = append(u.removes, target)
		if p.peek().kind != tokComma {
			return nil
		}
		p.next()
	}
}

// UpdatedAttributes returns the top level attribute names the update touches.
func (u *Update) UpdatedAttributes(in EvalInput) ([]string, error) {
	var names []string
	seen := map[string]bool{}
	for _, pa := range u.paths() {
		resolved, err := pa.resolve(in)
		if err != nil {
			return nil, err
		}
		if !seen[resolved[0]] {
			seen[resolved[0]] = true
			names = append(names, resolved[0])
		}
	}
	return names, nil
}

func (u *Update) paths() []path {
	paths := make([]path, 0, len(u.sets)+len(u.removes))
	for _, s := range u.sets {
		paths = append(paths, s.target)
	}
	return append(paths, u.removes...)
}

// Apply returns a copy of item with the update applied. All operands are
// evaluated against the original item.
func (u *Update) Apply(in EvalInput, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	out := maps.Clone(item)
	if out == nil {
		out = make(map[string]types.AttributeValue)
	}

	for _, s := range u.sets {
		value, err := s.eval(in, item)
		if err != nil {
			return nil, err
		}
		names, err := s.target.resolve(in)
		if err != nil {
			return nil, err
		}
		if err := setPath(out, names, value); err != nil {
			return nil, err
		}
	}
	for _, pa := range u.removes {
		names, err := pa.resolve(in)
		if err != nil {
			return nil, err
		}
		if err := removePath(out, names); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s setAction) eval(in EvalInput, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	left, err := s.left.eval(in, item)
	if err != nil {
		return nil, err
	}
	if left == nil {
		return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
	}
	if s.op == "" {
		return left, nil
	}

	right, err := s.right.eval(in, item)
	if err != nil {
		return nil, err
	}
	ln, lok := left.(*types.AttributeValueMemberN)
	rn, rok := right.(*types.AttributeValueMemberN)
	if !lok || !rok {
		return nil, fmt.Errorf("incorrect operand type for operator %q: both operands must be numbers", s.op)
	}
	x, err := parseNumber(ln.Value)
	if err != nil {
		return nil, err
	}
	y, err := parseNumber(rn.Value)
	if err != nil {
		return nil, err
	}
	if s.op == "+" {
		x.Add(x, y)
	} else {
		x.Sub(x, y)
	}
	return &types.AttributeValueMemberN{Value: x.Text('g', -1)}, nil
}

// setPath writes value at names, copying nested maps on the way so the
// original item is never modified.
func setPath(item map[string]types.AttributeValue, names []string, value types.AttributeValue) error {
	if len(names) == 1 {
		item[names[0]] = value
		return nil
	}
	parent, ok := item[names[0]].(*types.AttributeValueMemberM)
	if !ok {
		return fmt.Errorf("the document path provided in the update expression is invalid for update: %s is not a map", names[0])
	}
	child := maps.Clone(parent.Value)
	if err := setPath(child, names[1:], value); err != nil {
		return err
	}
	item[names[0]] = &types.AttributeValueMemberM{Value: child}
	return nil
}

func removePath(item map[string]types.AttributeValue, names []string) error {
	if len(names) == 1 {
		delete(item, names[0])
		return nil
	}
	parent, ok := item[names[0]].(*types.AttributeValueMemberM)
	if !ok {
		return nil
	}
	child := maps.Clone(parent.Value)
	if err := removePath(child, names[1:]); err != nil {
		return err
	}
	item[names[0]] = &types.AttributeValueMemberM{Value: child}
	return nil
}
