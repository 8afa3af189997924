package ddbstore

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// GetItem retrieves a single item by its primary key.
// A missing item is not an error: the output has a nil Item, as with DynamoDB.
func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.Key == nil {
		return nil, validationError("key is required")
	}
	if params.ProjectionExpression != nil {
		return nil, validationError("ProjectionExpression is not supported by the local store")
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

	var item map[string]types.AttributeValue
	err = s.db.View(func(txn *badger.Txn) error {
		item, err = getItem(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// getItem reads the item stored under key, or nil if there is none.
func getItem(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	badgerItem, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var item map[string]types.AttributeValue
	err = badgerItem.Value(func(val []byte) error {
		item, err = deserializeItem(val)
		return err
	})
	return item, err
}
