package ddbstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"
)

// Table metadata lives under its own prefix, next to the item data.
var metaPrefix = []byte("m/")

type tableMeta struct {
	Definition table.TableDefinition `yaml:"definition"`
	CreatedAt  time.Time             `yaml:"createdAt"`
}

func metaKey(tableName string) []byte {
	return append(bytes.Clone(metaPrefix), tableName...)
}

func (s *Store) loadTables() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metaPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var meta tableMeta
			if err := it.Item().Value(func(val []byte) error {
				return yaml.Unmarshal(val, &meta)
			}); err != nil {
				return fmt.Errorf("load table metadata %q: %w", it.Item().Key(), err)
			}
			s.tables[meta.Definition.Name] = newTableSchema(meta.Definition)
		}
		return nil
	})
}

func (s *Store) createTable(def table.TableDefinition) error {
	if err := def.Validate(); err != nil {
		return validationError("%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[def.Name]; exists {
		return resourceInUse("Table already exists: %s", def.Name)
	}

	data, err := yaml.Marshal(tableMeta{Definition: def, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode table metadata: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(def.Name), data)
	}); err != nil {
		return fmt.Errorf("store table metadata: %w", err)
	}

	s.tables[def.Name] = newTableSchema(def)
	return nil
}

// CreateTable creates a table from its key schema. Billing, throughput and index
// settings are accepted and ignored.
func (s *Store) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if len(params.GlobalSecondaryIndexes) > 0 || len(params.LocalSecondaryIndexes) > 0 {
		return nil, validationError("secondary indexes are not supported by the local store")
	}

	def, err := table.FromDescription(&types.TableDescription{
		TableName:            params.TableName,
		KeySchema:            params.KeySchema,
		AttributeDefinitions: params.AttributeDefinitions,
	})
	if err != nil {
		return nil, validationError("%v", err)
	}
	if err := s.createTable(def); err != nil {
		return nil, err
	}

	desc := def.Description()
	desc.CreationDateTime = aws.Time(time.Now().UTC())
	return &dynamodb.CreateTableOutput{TableDescription: desc}, nil
}

// DescribeTable returns the key schema of a table and its current item count.
func (s *Store) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = t.keys.tablePrefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	}); err != nil {
		return nil, err
	}

	desc := t.definition.Description()
	desc.ItemCount = aws.Int64(count)
	return &dynamodb.DescribeTableOutput{Table: desc}, nil
}
