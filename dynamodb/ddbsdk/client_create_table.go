package ddbsdk

import (
	"context"
	"log/slog"

	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ubuntu/decorate"
)

// CreateTable creates an on-demand table with the key schema of def.
func (c *Client) CreateTable(ctx context.Context, def table.TableDefinition) (err error) {
	defer decorate.OnError(&err, "create table %s", def.Name)

	if err := def.Validate(); err != nil {
		return err
	}

	slog.Debug("Creating table", "table", def.Name, "keys", def.KeyDefinitions.Names())
	_, err = c.awsddb.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(def.Name),
		KeySchema:            def.KeyDefinitions.KeySchema(),
		AttributeDefinitions: def.KeyDefinitions.AttributeDefinitions(),
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.Put(c.cacheScope, def); err != nil {
			slog.Warn("Could not cache key schema", "table", def.Name, "error", err)
		}
	}
	return nil
}
