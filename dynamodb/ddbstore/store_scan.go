package ddbstore

import (
	"bytes"
	"context"

	"github.com/acksell/ddbcli/dynamodb/ddbstore/expr"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// Scan retrieves the items of a table in key order, optionally with a filter.
// Limit caps the number of items evaluated, as with DynamoDB, so a filtered page
// can hold fewer items than Limit while LastEvaluatedKey is still set.
func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.IndexName != nil {
		return nil, validationError("secondary indexes are not supported by the local store")
	}
	if params.ProjectionExpression != nil {
		return nil, validationError("ProjectionExpression is not supported by the local store")
	}

	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	limit := 0
	if params.Limit != nil {
		if *params.Limit <= 0 {
			return nil, validationError("Limit must be greater than or equal to 1")
		}
		limit = int(*params.Limit)
	}

	var filter expr.Condition
	if params.FilterExpression != nil {
		filter, err = expr.ParseCondition(*params.FilterExpression)
		if err != nil {
			return nil, validationError("%v", err)
		}
	}
	in := expr.EvalInput{
		ExpressionNames:  params.ExpressionAttributeNames,
		ExpressionValues: params.ExpressionAttributeValues,
	}

	prefix := t.keys.tablePrefix()
	out := &dynamodb.ScanOutput{}

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		if params.ExclusiveStartKey != nil {
			startKey, err := t.keys.encodeItemKey(params.ExclusiveStartKey)
			if err != nil {
				return err
			}
			it.Seek(startKey)
			if it.Valid() && bytes.Equal(it.Item().Key(), startKey) {
				it.Next()
			}
		} else {
			it.Rewind()
		}

		var last map[string]types.AttributeValue
		for ; it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && int(out.ScannedCount) == limit {
				out.LastEvaluatedKey = keyAttributes(last, t.definition.KeyDefinitions)
				return nil
			}

			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = deserializeItem(val)
				return err
			}); err != nil {
				return err
			}
			out.ScannedCount++
			last = item

			if filter != nil {
				ok, err := filter.Eval(in, item)
				if err != nil {
					return validationError("%v", err)
				}
				if !ok {
					continue
				}
			}
			out.Items = append(out.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Count = int32(len(out.Items))
	return out, nil
}

// keyAttributes returns only the primary key attributes of item.
func keyAttributes(item map[string]types.AttributeValue, keys table.PrimaryKeyDefinition) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	key := make(map[string]types.AttributeValue, 2)
	for _, name := range keys.Names() {
		if av, ok := item[name]; ok {
			key[name] = av
		}
	}
	return key
}
