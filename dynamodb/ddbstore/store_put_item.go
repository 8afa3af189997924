package ddbstore

import (
	"context"
	"fmt"

	"github.com/acksell/ddbcli/dynamodb/ddbstore/expr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// PutItem creates or replaces an item.
func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.Item == nil {
		return nil, validationError("item is required")
	}

	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	key, err := t.keys.encodeItemKey(params.Item)
	if err != nil {
		return nil, err
	}

	itemBytes, err := serializeItem(params.Item)
	if err != nil {
		return nil, validationError("%v", err)
	}

	var oldItem map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		oldItem, err = getItem(txn, key)
		if err != nil {
			return err
		}
		if err := checkCondition(params.ConditionExpression, expr.EvalInput{
			ExpressionNames:  params.ExpressionAttributeNames,
			ExpressionValues: params.ExpressionAttributeValues,
		}, oldItem); err != nil {
			return err
		}
		return txn.Set(key, itemBytes)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = oldItem
	}
	return out, nil
}

// checkCondition evaluates an optional condition expression against the current item.
func checkCondition(condition *string, in expr.EvalInput, current map[string]types.AttributeValue) error {
	if condition == nil {
		return nil
	}
	ok, err := expr.EvalCondition(*condition, in, current)
	if err != nil {
		return validationError("%v", fmt.Errorf("evaluate condition: %w", err))
	}
	if !ok {
		return conditionalCheckFailed()
	}
	return nil
}
