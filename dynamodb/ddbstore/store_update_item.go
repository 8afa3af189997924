package ddbstore

import (
	"context"
	"maps"
	"slices"

	"github.com/acksell/ddbcli/dynamodb/ddbstore/expr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// UpdateItem updates an existing item or creates a new one.
func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.Key == nil {
		return nil, validationError("key is required")
	}
	if params.UpdateExpression == nil {
		return nil, validationError("UpdateExpression is required")
	}

	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	if len(params.Key) != len(t.definition.KeyDefinitions.Names()) {
		return nil, validationError("The provided key element does not match the schema")
	}
	key, err := t.keys.encodeItemKey(params.Key)
	if err != nil {
		return nil, err
	}

	update, err := expr.ParseUpdate(*params.UpdateExpression)
	if err != nil {
		return nil, validationError("%v", err)
	}
	in := expr.EvalInput{
		ExpressionNames:  params.ExpressionAttributeNames,
		ExpressionValues: params.ExpressionAttributeValues,
	}
	updated, err := update.UpdatedAttributes(in)
	if err != nil {
		return nil, validationError("%v", err)
	}
	for _, name := range t.definition.KeyDefinitions.Names() {
		if slices.Contains(updated, name) {
			return nil, validationError("Cannot update attribute %s. This attribute is part of the key", name)
		}
	}

	var oldItem, newItem map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		oldItem, err = getItem(txn, key)
		if err != nil {
			return err
		}
		if err := checkCondition(params.ConditionExpression, in, oldItem); err != nil {
			return err
		}

		base := maps.Clone(oldItem)
		if base == nil {
			base = make(map[string]types.AttributeValue, len(params.Key))
		}
		maps.Copy(base, params.Key)

		newItem, err = update.Apply(in, base)
		if err != nil {
			return validationError("%v", err)
		}
		itemBytes, err := serializeItem(newItem)
		if err != nil {
			return validationError("%v", err)
		}
		return txn.Set(key, itemBytes)
	})
	if err != nil {
		return nil, err
	}

	return &dynamodb.UpdateItemOutput{
		Attributes: returnAttributes(params.ReturnValues, oldItem, newItem, updated),
	}, nil
}

func returnAttributes(rv types.ReturnValue, oldItem, newItem map[string]types.AttributeValue, updated []string) map[string]types.AttributeValue {
	switch rv {
	case types.ReturnValueAllOld:
		return oldItem
	case types.ReturnValueAllNew:
		return newItem
	case types.ReturnValueUpdatedOld:
		return pick(oldItem, updated)
	case types.ReturnValueUpdatedNew:
		return pick(newItem, updated)
	default:
		return nil
	}
}

func pick(item map[string]types.AttributeValue, names []string) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(names))
	for _, name := range names {
		if av, ok := item[name]; ok {
			out[name] = av
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
