package ddbsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/acksell/ddbcli/dynamodb/itemjson"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ubuntu/decorate"
	"golang.org/x/exp/maps"
)

// UpdateRequest describes the changes UpdateItem applies to an item.
// Values are anything attributevalue.Marshal accepts, typically the result of
// itemjson.Parse.
type UpdateRequest struct {
	// Set assigns attribute values.
	Set map[string]any
	// Remove deletes attributes.
	Remove []string
	// Condition must hold on the stored item for the update to happen.
	Condition *Condition
}

// UpdateItem applies req to the item with the given key values and returns the
// item as it is after the update. Missing items are created, as with DynamoDB.
func (c *Client) UpdateItem(ctx context.Context, tableName string, keyValues []string, req UpdateRequest) (item map[string]types.AttributeValue, err error) {
	defer decorate.OnError(&err, "update item")

	if len(req.Set) == 0 && len(req.Remove) == 0 {
		return nil, errors.New("nothing to update")
	}
	key, err := c.key(ctx, tableName, keyValues)
	if err != nil {
		return nil, err
	}

	var update expression.UpdateBuilder
	// Sorted so the generated expression is deterministic.
	names := maps.Keys(req.Set)
	sort.Strings(names)
	for _, name := range names {
		update = update.Set(expression.Name(name), expression.Value(req.Set[name]))
	}
	for _, name := range req.Remove {
		update = update.Remove(expression.Name(name))
	}

	builder := expression.NewBuilder().WithUpdate(update)
	if req.Condition != nil {
		cond, err := req.Condition.build()
		if err != nil {
			return nil, err
		}
		builder = builder.WithCondition(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build expression: %w", err)
	}

	slog.Debug("Updating item", "table", tableName, "update", aws.ToString(expr.Update()), "condition", aws.ToString(expr.Condition()))
	out, err := c.awsddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, err
	}
	return out.Attributes, nil
}

// Operators accepted by ParseCondition.
const (
	OpEq         = "eq"
	OpNe         = "ne"
	OpLt         = "lt"
	OpLte        = "lte"
	OpGt         = "gt"
	OpGte        = "gte"
	OpBeginsWith = "begins_with"
	OpBetween    = "between"
	OpExists     = "exists"
	OpNotExists  = "not_exists"
)

// Condition is a single attribute condition, such as "version eq 3".
type Condition struct {
	Attr   string
	Op     string
	Values []any
}

// ParseCondition parses "ATTR OP [JSON]". exists and not_exists take no value,
// between takes a JSON array of two values and every other operator one JSON value.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	attr, rest, _ := strings.Cut(s, " ")
	rest = strings.TrimSpace(rest)
	op, value, _ := strings.Cut(rest, " ")
	op = strings.ToLower(op)
	value = strings.TrimSpace(value)
	if attr == "" || op == "" {
		return Condition{}, fmt.Errorf("invalid condition %q: expected ATTR OP [JSON]", s)
	}

	c := Condition{Attr: attr, Op: op}
	switch op {
	case OpExists, OpNotExists:
		if value != "" {
			return Condition{}, fmt.Errorf("invalid condition %q: %s takes no value", s, op)
		}
		return c, nil
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpBeginsWith, OpBetween:
	default:
		return Condition{}, fmt.Errorf("invalid condition %q: unknown operator %q", s, op)
	}

	if value == "" {
		return Condition{}, fmt.Errorf("invalid condition %q: %s needs a JSON value", s, op)
	}
	v, err := itemjson.Parse([]byte(value))
	if err != nil {
		return Condition{}, fmt.Errorf("invalid condition %q: %w", s, err)
	}

	switch op {
	case OpBetween:
		bounds, ok := v.([]any)
		if !ok || len(bounds) != 2 {
			return Condition{}, fmt.Errorf("invalid condition %q: between needs a JSON array of two values", s)
		}
		c.Values = bounds
	case OpBeginsWith:
		if _, ok := v.(string); !ok {
			return Condition{}, fmt.Errorf("invalid condition %q: begins_with needs a JSON string", s)
		}
		c.Values = []any{v}
	default:
		c.Values = []any{v}
	}
	return c, nil
}

func (c Condition) build() (expression.ConditionBuilder, error) {
	name := expression.Name(c.Attr)
	switch c.Op {
	case OpExists:
		return expression.AttributeExists(name), nil
	case OpNotExists:
		return expression.AttributeNotExists(name), nil
	case OpBetween:
		if len(c.Values) != 2 {
			return expression.ConditionBuilder{}, fmt.Errorf("condition on %s: between needs two values", c.Attr)
		}
		return name.Between(expression.Value(c.Values[0]), expression.Value(c.Values[1])), nil
	}

	if len(c.Values) != 1 {
		return expression.ConditionBuilder{}, fmt.Errorf("condition on %s: %s needs one value", c.Attr, c.Op)
	}
	value := expression.Value(c.Values[0])
	switch c.Op {
	case OpEq:
		return name.Equal(value), nil
	case OpNe:
		return name.NotEqual(value), nil
	case OpLt:
		return name.LessThan(value), nil
	case OpLte:
		return name.LessThanEqual(value), nil
	case OpGt:
		return name.GreaterThan(value), nil
	case OpGte:
		return name.GreaterThanEqual(value), nil
	case OpBeginsWith:
		prefix, ok := c.Values[0].(string)
		if !ok {
			return expression.ConditionBuilder{}, fmt.Errorf("condition on %s: begins_with needs a string", c.Attr)
		}
		return name.BeginsWith(prefix), nil
	default:
		return expression.ConditionBuilder{}, fmt.Errorf("condition on %s: unknown operator %q", c.Attr, c.Op)
	}
}
