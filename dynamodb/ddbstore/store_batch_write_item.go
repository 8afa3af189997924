package ddbstore

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// MaxBatchWriteItems is the number of write requests DynamoDB accepts in one
// BatchWriteItem call.
const MaxBatchWriteItems = 25

// BatchWriteItem performs multiple put and delete operations in a single transaction.
// The local store never leaves items unprocessed.
func (s *Store) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if len(params.RequestItems) == 0 {
		return nil, validationError("RequestItems must not be empty")
	}

	type write struct {
		key   []byte
		value []byte // nil for deletes
	}
	var writes []write
	total := 0

	for tableName, requests := range params.RequestItems {
		t, err := s.getTable(&tableName)
		if err != nil {
			return nil, err
		}
		for _, req := range requests {
			total++
			switch {
			case req.PutRequest != nil && req.DeleteRequest != nil:
				return nil, validationError("a write request must contain exactly one of PutRequest or DeleteRequest")
			case req.PutRequest != nil:
				key, err := t.keys.encodeItemKey(req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				value, err := serializeItem(req.PutRequest.Item)
				if err != nil {
					return nil, validationError("%v", err)
				}
				writes = append(writes, write{key: key, value: value})
			case req.DeleteRequest != nil:
				key, err := t.keys.encodeItemKey(req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				writes = append(writes, write{key: key})
			default:
				return nil, validationError("a write request must contain exactly one of PutRequest or DeleteRequest")
			}
		}
	}
	if total > MaxBatchWriteItems {
		return nil, validationError("Too many items requested for the BatchWriteItem call: %d, maximum is %d", total, MaxBatchWriteItems)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			if w.value == nil {
				if err := txn.Delete(w.key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				continue
			}
			if err := txn.Set(w.key, w.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]types.WriteRequest{},
	}, nil
}
