package ddbstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/acksell/ddbcli/dynamodb/ddbiface"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/dgraph-io/badger/v4"
	"golang.org/x/exp/maps"
)

// Store is a DynamoDB-compatible store backed by BadgerDB.
// It implements the subset of the DynamoDB API that ddb uses, which makes it a
// drop-in local backend for development and tests.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	tables map[string]*tableSchema
}

var _ ddbiface.Client = (*Store)(nil)

type tableSchema struct {
	definition table.TableDefinition
	keys       *badgerKeyEncoder
}

func newTableSchema(def table.TableDefinition) *tableSchema {
	return &tableSchema{
		definition: def,
		keys: &badgerKeyEncoder{
			tableName: def.Name,
			keyDefs:   def.KeyDefinitions,
		},
	}
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badger.Logger
}

// New opens a BadgerDB-backed DynamoDB store.
// Tables created in earlier sessions are loaded from the database; defs are
// created when they do not exist yet.
func New(opts StoreOptions, defs ...table.TableDefinition) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		tables: make(map[string]*tableSchema),
	}
	if err := s.loadTables(); err != nil {
		db.Close()
		return nil, err
	}
	for _, def := range defs {
		if _, exists := s.tables[def.Name]; exists {
			continue
		}
		if err := s.createTable(def); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TableNames returns the names of all tables in the store, sorted.
func (s *Store) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := maps.Keys(s.tables)
	sort.Strings(names)
	return names
}

func (s *Store) getTable(tableName *string) (*tableSchema, error) {
	if tableName == nil || *tableName == "" {
		return nil, validationError("table name is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.tables[*tableName]
	if !ok {
		return nil, resourceNotFound("Requested resource not found: Table: %s not found", *tableName)
	}
	return schema, nil
}
