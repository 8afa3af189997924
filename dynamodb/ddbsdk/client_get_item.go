package ddbsdk

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ubuntu/decorate"
)

// GetItem retrieves the item with the given key values using a consistent read.
// keyValues holds the hash key value and, for tables with a range key, the range
// key value. Returns ErrItemNotFound when there is no such item.
func (c *Client) GetItem(ctx context.Context, tableName string, keyValues ...string) (item map[string]types.AttributeValue, err error) {
	defer decorate.OnError(&err, "get item")

	key, err := c.key(ctx, tableName, keyValues)
	if err != nil {
		return nil, err
	}

	slog.Debug("Getting item", "table", tableName, "key", strings.Join(keyValues, "/"))
	out, err := c.awsddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, ErrItemNotFound
	}
	return out.Item, nil
}
