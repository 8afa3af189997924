package ddbsdk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ubuntu/decorate"
)

// PutItems writes items to the table, replacing items with the same key.
// A single item is written with PutItem; more are sent through a [Batcher].
// When several items share a key the last one wins, as with one PutItem per item.
func (c *Client) PutItems(ctx context.Context, tableName string, items ...map[string]types.AttributeValue) (err error) {
	defer decorate.OnError(&err, "put items")

	switch len(items) {
	case 0:
		return nil
	case 1:
		slog.Debug("Putting item", "table", tableName)
		_, err := c.awsddb.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(tableName),
			Item:      items[0],
		})
		return err
	}

	def, err := c.TableDefinition(ctx, tableName)
	if err != nil {
		return err
	}
	items, err = lastPerKey(def, items)
	if err != nil {
		return err
	}

	batch := NewBatcher(c.awsddb, c.batchOpts...)
	for _, item := range items {
		if err := batch.AddPut(def, item); err != nil {
			return err
		}
	}

	slog.Debug("Putting items", "table", tableName, "count", len(items))
	return batch.ExecAndRetry(ctx)
}

// lastPerKey drops items overwritten by a later item with the same key.
// BatchWriteItem rejects a batch holding the same key twice.
func lastPerKey(def table.TableDefinition, items []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	pos := make(map[string]int, len(items))
	var out []map[string]types.AttributeValue
	for i, item := range items {
		pk, err := def.ExtractPrimaryKey(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: table %s: %w", i+1, def.Name, err)
		}
		k := fmt.Sprintf("%q/%q", pk.Values.PartitionKey, pk.Values.SortKey)
		if j, ok := pos[k]; ok {
			slog.Debug("Item replaced by a later one with the same key", "table", def.Name, "item", i+1)
			out[j] = item
			continue
		}
		pos[k] = len(out)
		out = append(out, item)
	}
	return out, nil
}
