package ddbsdk

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ubuntu/decorate"
)

// ScanOptions configures Scan.
type ScanOptions struct {
	// Limit caps the number of items returned. 0 returns every item.
	Limit int
}

// Scan returns the items of a table, following pagination until the table is
// exhausted or Limit items were collected.
func (c *Client) Scan(ctx context.Context, tableName string, opts ScanOptions) (items []map[string]types.AttributeValue, err error) {
	defer decorate.OnError(&err, "scan")

	input := &dynamodb.ScanInput{TableName: aws.String(tableName)}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(min(opts.Limit, 1<<31-1)))
	}

	items = []map[string]types.AttributeValue{}
	paginator := dynamodb.NewScanPaginator(c.awsddb, input)
	for pages := 1; paginator.HasMorePages(); pages++ {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		slog.Debug("Scanned page", "table", tableName, "page", pages, "items", len(page.Items))
		items = append(items, page.Items...)
		if opts.Limit > 0 && len(items) >= opts.Limit {
			return items[:opts.Limit], nil
		}
	}
	return items, nil
}
