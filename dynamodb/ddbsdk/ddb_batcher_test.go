package ddbsdk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/acksell/ddbcli/dynamodb/ddbstore"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var batchTestTable = table.TableDefinition{
	Name: "batch-test-table",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
	},
}

func batchTestItem(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":   &types.AttributeValueMemberS{Value: pk},
		"sk":   &types.AttributeValueMemberS{Value: sk},
		"name": &types.AttributeValueMemberS{Value: pk + "/" + sk},
	}
}

func batchTestKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// flakyWriter processes all but the last request of each BatchWriteItem call
// while failures > 0, and records the size of every call.
type flakyWriter struct {
	*ddbstore.Store
	failures int
	calls    []int
}

func (f *flakyWriter) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	var n int
	for _, reqs := range params.RequestItems {
		n += len(reqs)
	}
	f.calls = append(f.calls, n)
	if n > ddbstore.MaxBatchWriteItems {
		return nil, fmt.Errorf("too many requests: %d", n)
	}
	if f.failures == 0 {
		return f.Store.BatchWriteItem(ctx, params, optFns...)
	}
	f.failures--

	processed := make(map[string][]types.WriteRequest)
	unprocessed := make(map[string][]types.WriteRequest)
	for tableName, reqs := range params.RequestItems {
		last := len(reqs) - 1
		processed[tableName] = reqs[:last]
		unprocessed[tableName] = reqs[last:]
		if last == 0 {
			delete(processed, tableName)
		}
	}
	if len(processed) > 0 {
		if _, err := f.Store.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: processed}, optFns...); err != nil {
			return nil, err
		}
	}
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}

func newFlakyWriter(t *testing.T, failures int) *flakyWriter {
	t.Helper()
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, batchTestTable)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &flakyWriter{Store: store, failures: failures}
}

func noBackoff(int) time.Duration { return 0 }

func countItems(t *testing.T, store *ddbstore.Store) int {
	t.Helper()
	out, err := store.Scan(context.Background(), &dynamodb.ScanInput{TableName: &batchTestTable.Name})
	require.NoError(t, err)
	return len(out.Items)
}

func TestBatcher_PutItems(t *testing.T) {
	db := newFlakyWriter(t, 0)
	ctx := context.Background()

	batch := NewBatcher(db)
	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#1", "profile")))
	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#2", "profile")))
	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#3", "profile")))
	assert.Equal(t, 3, batch.Pending())

	result, err := batch.Exec(ctx)
	require.NoError(t, err)
	assert.True(t, result.Done())
	assert.Equal(t, 0, batch.Pending())
	assert.Equal(t, 3, countItems(t, db.Store))
}

func TestBatcher_MixedPutAndDelete(t *testing.T) {
	db := newFlakyWriter(t, 0)
	ctx := context.Background()

	setup := NewBatcher(db)
	require.NoError(t, setup.AddPut(batchTestTable, batchTestItem("user#1", "profile")))
	require.NoError(t, setup.AddPut(batchTestTable, batchTestItem("user#2", "profile")))
	_, err := setup.Exec(ctx)
	require.NoError(t, err)

	batch := NewBatcher(db)
	require.NoError(t, batch.AddDelete(batchTestTable, batchTestKey("user#1", "profile")))
	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#3", "profile")))
	result, err := batch.Exec(ctx)
	require.NoError(t, err)
	assert.True(t, result.Done())
	assert.Equal(t, 2, countItems(t, db.Store))
}

func TestBatcher_RejectsDuplicatesAndInvalidKeys(t *testing.T) {
	batch := NewBatcher(newFlakyWriter(t, 0))

	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#1", "profile")))
	require.Error(t, batch.AddPut(batchTestTable, batchTestItem("user#1", "profile")), "same key twice")
	require.Error(t, batch.AddDelete(batchTestTable, batchTestKey("user#1", "profile")), "put and delete of the same key")
	require.Error(t, batch.AddPut(batchTestTable, map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "no sort key"},
	}))
	assert.Equal(t, 1, batch.Pending())
}

func TestBatcher_ChunksRequests(t *testing.T) {
	db := newFlakyWriter(t, 0)
	batch := NewBatcher(db, WithMaxRetries(3))

	for i := 0; i < 60; i++ {
		require.NoError(t, batch.AddPut(batchTestTable, batchTestItem(fmt.Sprintf("user#%02d", i), "profile")))
	}
	require.NoError(t, batch.ExecAndRetry(context.Background()))

	assert.Equal(t, []int{25, 25, 10}, db.calls)
	assert.Equal(t, 60, countItems(t, db.Store))
}

func TestBatcher_RetriesUnprocessed(t *testing.T) {
	db := newFlakyWriter(t, 2)
	batch := NewBatcher(db, WithMaxRetries(5), WithCustomBackoff(noBackoff))

	for i := 0; i < 3; i++ {
		require.NoError(t, batch.AddPut(batchTestTable, batchTestItem(fmt.Sprintf("user#%d", i), "profile")))
	}

	res, err := batch.Exec(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Done())
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 1, res.Pending)
	require.Len(t, res.Unprocessed[batchTestTable.Name], 1)

	require.NoError(t, batch.ExecAndRetry(context.Background()))
	assert.Equal(t, []int{3, 1, 1}, db.calls)
	assert.Equal(t, 3, countItems(t, db.Store))
}

func TestBatcher_MaxRetriesExceeded(t *testing.T) {
	db := newFlakyWriter(t, 100)
	batch := NewBatcher(db, WithMaxRetries(3), WithCustomBackoff(noBackoff))
	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#1", "profile")))

	err := batch.ExecAndRetry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
	assert.Len(t, db.calls, 3)
}

func TestBatcher_ExecAndRetryNeedsLimits(t *testing.T) {
	batch := NewBatcher(newFlakyWriter(t, 0))
	require.Error(t, batch.ExecAndRetry(context.Background()))
}

func TestBatcher_HonorsCancellation(t *testing.T) {
	db := newFlakyWriter(t, 100)
	batch := NewBatcher(db, WithMaxRetries(10), WithCustomBackoff(func(int) time.Duration { return time.Hour }))
	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#1", "profile")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, batch.ExecAndRetry(ctx), context.DeadlineExceeded)
}

func TestBatcher_Timeout(t *testing.T) {
	db := newFlakyWriter(t, 100)
	batch := NewBatcher(db, WithTimeout(50*time.Millisecond), WithCustomBackoff(func(int) time.Duration { return 10 * time.Millisecond }))
	require.NoError(t, batch.AddPut(batchTestTable, batchTestItem("user#1", "profile")))

	require.ErrorIs(t, batch.ExecAndRetry(context.Background()), context.DeadlineExceeded)
	assert.Equal(t, 1, batch.Pending(), "the unprocessed request stays queued")
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(10*time.Millisecond, 2, 50*time.Millisecond)
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 50*time.Millisecond)
	}
}
