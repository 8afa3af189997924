// Package ddbsdk maps the ddb commands onto DynamoDB API calls.
package ddbsdk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/acksell/ddbcli/dynamodb/ddbiface"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ubuntu/decorate"
)

// ErrItemNotFound is returned by GetItem when no item has the requested key.
var ErrItemNotFound = errors.New("item not found")

// Client runs ddb operations against a DynamoDB API implementation.
type Client struct {
	awsddb ddbiface.Client

	cache      *SchemaCache
	cacheScope string
	batchOpts  []BatchOption
}

// Option configures a Client.
type Option func(*Client)

// WithSchemaCache looks up and stores key schemas in cache under scope.
func WithSchemaCache(cache *SchemaCache, scope string) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheScope = scope
	}
}

// WithBatchOptions configures the batch writer used by PutItems.
func WithBatchOptions(opts ...BatchOption) Option {
	return func(c *Client) {
		c.batchOpts = append(c.batchOpts, opts...)
	}
}

// New returns a Client using awsddb, which is usually a *dynamodb.Client or a
// local *ddbstore.Store.
func New(awsddb ddbiface.Client, opts ...Option) *Client {
	c := &Client{
		awsddb:    awsddb,
		batchOpts: []BatchOption{WithMaxRetries(DefaultMaxRetries)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TableDefinition returns the key schema of a table, from the cache when possible.
func (c *Client) TableDefinition(ctx context.Context, tableName string) (def table.TableDefinition, err error) {
	defer decorate.OnError(&err, "describe table %s", tableName)

	if c.cache != nil {
		if def, ok := c.cache.Get(c.cacheScope, tableName); ok {
			slog.Debug("Using cached key schema", "table", tableName, "keys", def.KeyDefinitions.Names())
			return def, nil
		}
	}

	out, err := c.awsddb.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return table.TableDefinition{}, err
	}
	def, err = table.FromDescription(out.Table)
	if err != nil {
		return table.TableDefinition{}, err
	}

	if c.cache != nil {
		if err := c.cache.Put(c.cacheScope, def); err != nil {
			slog.Warn("Could not cache key schema", "table", tableName, "error", err)
		}
	}
	return def, nil
}

// key resolves command line key values into a key attribute map.
func (c *Client) key(ctx context.Context, tableName string, keyValues []string) (map[string]types.AttributeValue, error) {
	def, err := c.TableDefinition(ctx, tableName)
	if err != nil {
		return nil, err
	}
	pk, err := def.KeyDefinitions.KeyFromStrings(keyValues...)
	if err != nil {
		return nil, err
	}
	return pk.DDB()
}
