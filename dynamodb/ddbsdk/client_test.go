package ddbsdk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/acksell/ddbcli/dynamodb/ddbstore"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usersTable = table.TableDefinition{
	Name: "users",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "id", Kind: table.KeyKindS},
	},
}

var eventsTable = table.TableDefinition{
	Name: "events",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "stream", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "seq", Kind: table.KeyKindN},
	},
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *ddbstore.Store) {
	t.Helper()
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, usersTable, eventsTable)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, opts...), store
}

func user(id, name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberS{Value: id},
		"name": &types.AttributeValueMemberS{Value: name},
	}
}

func TestClient_PutAndGet(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.PutItems(ctx, usersTable.Name, user("u1", "Alice")))

	got, err := client.GetItem(ctx, usersTable.Name, "u1")
	require.NoError(t, err)
	assert.Equal(t, user("u1", "Alice"), got)

	_, err = client.GetItem(ctx, usersTable.Name, "u2")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestClient_GetItem_RangeKey(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	item := map[string]types.AttributeValue{
		"stream": &types.AttributeValueMemberS{Value: "orders"},
		"seq":    &types.AttributeValueMemberN{Value: "42"},
	}
	require.NoError(t, client.PutItems(ctx, eventsTable.Name, item))

	got, err := client.GetItem(ctx, eventsTable.Name, "orders", "42")
	require.NoError(t, err)
	assert.Equal(t, item, got)

	_, err = client.GetItem(ctx, eventsTable.Name, "orders")
	require.Error(t, err, "range key value is required")

	_, err = client.GetItem(ctx, eventsTable.Name, "orders", "forty-two")
	require.Error(t, err, "range key must be a number")
}

func TestClient_GetItem_UnknownTable(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetItem(context.Background(), "nope", "u1")
	var notFound *types.ResourceNotFoundException
	require.ErrorAs(t, err, &notFound)
}

func TestClient_PutItems_Batches(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	var items []map[string]types.AttributeValue
	for i := 0; i < 60; i++ {
		items = append(items, user(fmt.Sprintf("u%02d", i), "user"))
	}
	require.NoError(t, client.PutItems(ctx, usersTable.Name, items...))

	got, err := client.Scan(ctx, usersTable.Name, ScanOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func TestClient_PutItems_DuplicateKeys(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	err := client.PutItems(ctx, usersTable.Name, user("u1", "Alice"), user("u2", "Carol"), user("u1", "Bob"))
	require.NoError(t, err, "the same key twice should not fail the batch")

	got, err := client.GetItem(ctx, usersTable.Name, "u1")
	require.NoError(t, err)
	assert.Equal(t, user("u1", "Bob"), got, "the last item with a key wins")

	all, err := client.Scan(ctx, usersTable.Name, ScanOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClient_PutItems_MissingKey(t *testing.T) {
	client, _ := newTestClient(t)

	err := client.PutItems(context.Background(), usersTable.Name, user("u1", "Alice"), map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: "nobody"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 2")
}

func TestClient_PutItems_BatchOptions(t *testing.T) {
	db := newFlakyWriter(t, 100)
	client := New(db, WithBatchOptions(WithMaxRetries(2), WithCustomBackoff(noBackoff)))

	err := client.PutItems(context.Background(), batchTestTable.Name,
		batchTestItem("user#1", "profile"), batchTestItem("user#2", "profile"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
	assert.Len(t, db.calls, 2)
}

func TestClient_Scan(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	got, err := client.Scan(ctx, usersTable.Name, ScanOptions{})
	require.NoError(t, err)
	assert.NotNil(t, got, "an empty table scans to an empty list")
	assert.Empty(t, got)

	for i := 0; i < 5; i++ {
		require.NoError(t, client.PutItems(ctx, usersTable.Name, user(fmt.Sprintf("u%d", i), "user")))
	}

	got, err = client.Scan(ctx, usersTable.Name, ScanOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = client.Scan(ctx, usersTable.Name, ScanOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestClient_UpdateItem(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.PutItems(ctx, usersTable.Name, map[string]types.AttributeValue{
		"id":      &types.AttributeValueMemberS{Value: "u1"},
		"name":    &types.AttributeValueMemberS{Value: "Alice"},
		"version": &types.AttributeValueMemberN{Value: "1"},
		"temp":    &types.AttributeValueMemberBOOL{Value: true},
	}))

	cond, err := ParseCondition(`version eq 1`)
	require.NoError(t, err)

	got, err := client.UpdateItem(ctx, usersTable.Name, []string{"u1"}, UpdateRequest{
		Set: map[string]any{
			"name":    "Alicia",
			"version": 2,
			"tags":    []any{"a", "b"},
		},
		Remove:    []string{"temp"},
		Condition: &cond,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]types.AttributeValue{
		"id":      &types.AttributeValueMemberS{Value: "u1"},
		"name":    &types.AttributeValueMemberS{Value: "Alicia"},
		"version": &types.AttributeValueMemberN{Value: "2"},
		"tags": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "a"},
			&types.AttributeValueMemberS{Value: "b"},
		}},
	}, got)

	// The same condition no longer holds.
	_, err = client.UpdateItem(ctx, usersTable.Name, []string{"u1"}, UpdateRequest{
		Set:       map[string]any{"name": "Al"},
		Condition: &cond,
	})
	var ccf *types.ConditionalCheckFailedException
	require.ErrorAs(t, err, &ccf)

	_, err = client.UpdateItem(ctx, usersTable.Name, []string{"u1"}, UpdateRequest{})
	require.Error(t, err, "an empty update is rejected")
}

func TestClient_UpdateItem_Conditions(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.PutItems(ctx, usersTable.Name, map[string]types.AttributeValue{
		"id":    &types.AttributeValueMemberS{Value: "u1"},
		"name":  &types.AttributeValueMemberS{Value: "Alice"},
		"score": &types.AttributeValueMemberN{Value: "10"},
	}))

	tests := map[string]struct {
		condition string
		wantFail  bool
	}{
		"eq":                   {condition: `name eq "Alice"`},
		"ne":                   {condition: `name ne "Bob"`},
		"lt":                   {condition: `score lt 11`},
		"lte":                  {condition: `score lte 10`},
		"gt fails":             {condition: `score gt 10`, wantFail: true},
		"gte":                  {condition: `score gte 10`},
		"begins_with":          {condition: `name begins_with "Al"`},
		"between":              {condition: `score between [5, 15]`},
		"between fails":        {condition: `score between [11, 15]`, wantFail: true},
		"exists":               {condition: `score exists`},
		"not_exists":           {condition: `missing not_exists`},
		"not_exists fails":     {condition: `name not_exists`, wantFail: true},
		"decimal number value": {condition: `score eq 10.0`},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cond, err := ParseCondition(tc.condition)
			require.NoError(t, err)

			_, err = client.UpdateItem(ctx, usersTable.Name, []string{"u1"}, UpdateRequest{
				Set:       map[string]any{"checked": true},
				Condition: &cond,
			})
			if tc.wantFail {
				var ccf *types.ConditionalCheckFailedException
				require.ErrorAs(t, err, &ccf)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseCondition(t *testing.T) {
	cond, err := ParseCondition(`  version   EQ 3 `)
	require.NoError(t, err)
	assert.Equal(t, "version", cond.Attr)
	assert.Equal(t, OpEq, cond.Op)
	require.Len(t, cond.Values, 1)

	cond, err = ParseCondition(`name begins_with "a b"`)
	require.NoError(t, err)
	assert.Equal(t, []any{"a b"}, cond.Values)

	for _, s := range []string{
		"",
		"version",
		"version eq",
		"version eq {bad",
		"version approx 3",
		"version exists 3",
		"name begins_with 3",
		"score between 3",
		"score between [1, 2, 3]",
		"version eq 1]",
		`name eq "a"}`,
	} {
		_, err := ParseCondition(s)
		assert.Error(t, err, s)
	}
}

func TestClient_CreateTable(t *testing.T) {
	cache, err := OpenSchemaCache(filepath.Join(t.TempDir(), "key_schema.yaml"))
	require.NoError(t, err)
	client, store := newTestClient(t, WithSchemaCache(cache, "local"))
	ctx := context.Background()

	def := table.TableDefinition{
		Name: "orders",
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: "customer", Kind: table.KeyKindS},
			SortKey:      table.KeyDef{Name: "order", Kind: table.KeyKindN},
		},
	}
	require.NoError(t, client.CreateTable(ctx, def))
	assert.Contains(t, store.TableNames(), "orders")

	cached, ok := cache.Get("local", "orders")
	require.True(t, ok)
	assert.Equal(t, def, cached)

	err = client.CreateTable(ctx, def)
	var inUse *types.ResourceInUseException
	require.ErrorAs(t, err, &inUse)

	err = client.CreateTable(ctx, table.TableDefinition{Name: "no-keys"})
	require.Error(t, err)
}

// describeCounter counts DescribeTable calls.
type describeCounter struct {
	*ddbstore.Store
	calls int
}

func (d *describeCounter) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	d.calls++
	return d.Store.DescribeTable(ctx, params, optFns...)
}

func TestClient_TableDefinition_Cache(t *testing.T) {
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, usersTable)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	counter := &describeCounter{Store: store}

	path := filepath.Join(t.TempDir(), "ddb", "key_schema.yaml")
	cache, err := OpenSchemaCache(path)
	require.NoError(t, err)
	client := New(counter, WithSchemaCache(cache, "eu-west-1"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		def, err := client.TableDefinition(ctx, usersTable.Name)
		require.NoError(t, err)
		assert.Equal(t, usersTable, def)
	}
	assert.Equal(t, 1, counter.calls, "only the first lookup describes the table")

	// A fresh process reads the cache from disk.
	reopened, err := OpenSchemaCache(path)
	require.NoError(t, err)
	def, ok := reopened.Get("eu-west-1", usersTable.Name)
	require.True(t, ok)
	assert.Equal(t, usersTable, def)

	_, ok = reopened.Get("us-east-1", usersTable.Name)
	assert.False(t, ok, "entries are scoped")

	// Without a cache every lookup describes the table.
	uncached := New(counter)
	_, err = uncached.TableDefinition(ctx, usersTable.Name)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.calls)
}

func TestOpenSchemaCache_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key_schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tables: [not, a, map]"), 0o600))

	_, err := OpenSchemaCache(path)
	require.Error(t, err)
}
