package ddbsdk

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/acksell/ddbcli/dynamodb/ddbiface"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MaxBatchSize is the number of write requests DynamoDB accepts in one BatchWriteItem call.
const MaxBatchSize = 25

// DefaultMaxRetries bounds the number of consecutive attempts that leave items unprocessed.
const DefaultMaxRetries = 8

// NewBatcher creates a write batch. Requests are sent in chunks of [MaxBatchSize].
func NewBatcher(ddb ddbiface.Client, opts ...BatchOption) *Batcher {
	b := &Batcher{
		awsddb: ddb,
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	// Default exponential backoff: 50ms base, 2x multiplier, 5s cap, full jitter
	if b.opts.backoff == nil {
		b.opts.backoff = DefaultBackoff
	}
	return b
}

// Batcher queues put and delete requests and writes them with BatchWriteItem.
type Batcher struct {
	awsddb ddbiface.Client
	opts   batchOpts

	pending []pendingWrite
	retries int
}

type pendingWrite struct {
	table string
	key   map[string]types.AttributeValue
	req   types.WriteRequest
}

// AddPut queues a put of item into the table.
// Returns an error if the item has no valid primary key or if a request for the
// same key is already queued, since DynamoDB rejects batches with duplicate keys.
func (b *Batcher) AddPut(def table.TableDefinition, item map[string]types.AttributeValue) error {
	return b.add(def, item, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
}

// AddDelete queues a delete of the item with the given key.
func (b *Batcher) AddDelete(def table.TableDefinition, key map[string]types.AttributeValue) error {
	return b.add(def, key, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
}

func (b *Batcher) add(def table.TableDefinition, doc map[string]types.AttributeValue, req types.WriteRequest) error {
	pk, err := def.ExtractPrimaryKey(doc)
	if err != nil {
		return fmt.Errorf("table %s: %w", def.Name, err)
	}
	key, err := pk.DDB()
	if err != nil {
		return fmt.Errorf("table %s: %w", def.Name, err)
	}
	for _, existing := range b.pending {
		if existing.table == def.Name && keysEqual(existing.key, key) {
			return fmt.Errorf("duplicate request for key %v in table %s", pk.Values, def.Name)
		}
	}
	b.pending = append(b.pending, pendingWrite{table: def.Name, key: key, req: req})
	return nil
}

// Pending returns the number of queued requests.
func (b *Batcher) Pending() int {
	return len(b.pending)
}

// Exec sends the next chunk of pending requests once (no retries).
// Unprocessed requests go back to the front of the queue.
func (b *Batcher) Exec(ctx context.Context) (ExecResult, error) {
	if len(b.pending) == 0 {
		return ExecResult{Retries: b.retries}, nil
	}

	n := min(len(b.pending), MaxBatchSize)
	chunk, rest := b.pending[:n], b.pending[n:]

	requestItems := make(map[string][]types.WriteRequest)
	byKey := make(map[string][]pendingWrite)
	for _, w := range chunk {
		requestItems[w.table] = append(requestItems[w.table], w.req)
		byKey[w.table] = append(byKey[w.table], w)
	}

	slog.Debug("Writing batch", "requests", n, "pending", len(b.pending))
	res, err := b.awsddb.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: requestItems,
	})
	if err != nil {
		return ExecResult{Pending: len(b.pending), Retries: b.retries}, fmt.Errorf("batch write failed: %w", err)
	}

	var unprocessed []pendingWrite
	for tableName, reqs := range res.UnprocessedItems {
		for _, req := range reqs {
			unprocessed = append(unprocessed, match(tableName, byKey[tableName], req))
		}
	}
	b.pending = append(unprocessed, rest...)
	if len(unprocessed) > 0 {
		b.retries++
		slog.Info("Batch write left items unprocessed", "unprocessed", len(unprocessed), "attempt", b.retries)
	} else {
		b.retries = 0
	}

	return ExecResult{
		Unprocessed: res.UnprocessedItems,
		Pending:     len(b.pending),
		Retries:     b.retries,
	}, nil
}

// match finds the queued write an unprocessed request belongs to, so that the
// key used for duplicate detection is kept.
func match(tableName string, chunk []pendingWrite, req types.WriteRequest) pendingWrite {
	doc := extractKey(req)
	for _, w := range chunk {
		if containsKey(doc, w.key) {
			return pendingWrite{table: tableName, key: w.key, req: req}
		}
	}
	return pendingWrite{table: tableName, key: doc, req: req}
}

// ExecAndRetry writes all pending items, retrying unprocessed ones until done or
// the limits are exceeded. At least one of [WithMaxRetries] or [WithTimeout] must
// be configured. Uses exponential backoff by default (50ms, 100ms, 200ms, ...),
// override with [WithCustomBackoff].
func (b *Batcher) ExecAndRetry(ctx context.Context) error {
	if b.opts.maxRetries == 0 && b.opts.timeout == 0 {
		return fmt.Errorf("ExecAndRetry requires WithMaxRetries or WithTimeout to be configured")
	}
	if b.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.timeout)
		defer cancel()
	}
	for {
		res, err := b.Exec(ctx)
		if err != nil {
			return err
		}
		if res.Done() {
			return nil
		}
		if res.Retries == 0 {
			continue
		}
		if b.opts.maxRetries > 0 && res.Retries >= b.opts.maxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %d items unprocessed", b.opts.maxRetries, len(b.pending))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.backoff(res.Retries)):
		}
	}
}

// extractKey gets the key attributes from a WriteRequest.
func extractKey(wr types.WriteRequest) map[string]types.AttributeValue {
	if wr.PutRequest != nil {
		return wr.PutRequest.Item
	}
	if wr.DeleteRequest != nil {
		return wr.DeleteRequest.Key
	}
	return nil
}

// keysEqual checks if two key maps have the same key attribute values.
func keysEqual(a, b map[string]types.AttributeValue) bool {
	return len(a) == len(b) && containsKey(a, b)
}

// containsKey reports whether doc holds every attribute of key with the same value.
func containsKey(doc, key map[string]types.AttributeValue) bool {
	for k, kv := range key {
		dv, ok := doc[k]
		if !ok || !attributeValuesEqual(dv, kv) {
			return false
		}
	}
	return true
}

// attributeValuesEqual compares two key AttributeValues.
func attributeValuesEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return av.Value == bv.Value
		}
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			return av.Value == bv.Value
		}
	case *types.AttributeValueMemberB:
		if bv, ok := b.(*types.AttributeValueMemberB); ok {
			return string(av.Value) == string(bv.Value)
		}
	}
	return false
}

// ExecResult contains the result of one BatchWriteItem call.
type ExecResult struct {
	// Unprocessed holds the requests of this call that DynamoDB did not process.
	Unprocessed map[string][]types.WriteRequest
	// Pending is the number of requests still queued, including unprocessed ones.
	Pending int
	// Retries counts consecutive calls that left requests unprocessed.
	Retries int
}

// Done returns true if every queued request was written.
func (r ExecResult) Done() bool {
	return r.Pending == 0
}

type BatchOption func(*batchOpts)

// BackoffFunc returns the duration to wait before retry attempt n.
type BackoffFunc func(attempt int) time.Duration

// WithMaxRetries sets the maximum number of retry attempts for [Batcher.ExecAndRetry].
func WithMaxRetries(n int) BatchOption {
	return func(o *batchOpts) {
		o.maxRetries = n
	}
}

// WithTimeout sets a timeout for [Batcher.ExecAndRetry].
func WithTimeout(d time.Duration) BatchOption {
	return func(o *batchOpts) {
		o.timeout = d
	}
}

// WithCustomBackoff sets a custom backoff function for [Batcher.ExecAndRetry].
func WithCustomBackoff(fn BackoffFunc) BatchOption {
	return func(o *batchOpts) {
		o.backoff = fn
	}
}

// ExponentialBackoff returns a capped exponential backoff with full jitter.
// Wait time is: rand(0, min(cap, base * multiplier^attempt))
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func ExponentialBackoff(base time.Duration, multiplier float64, cap time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		factor := 1.0
		for i := 0; i < attempt; i++ {
			factor *= multiplier
		}
		backoff := time.Duration(float64(base) * factor)
		if backoff > cap {
			backoff = cap
		}
		if backoff <= 0 {
			return 0
		}
		// Full jitter: random duration between 0 and backoff
		return time.Duration(rand.Int64N(int64(backoff)))
	}
}

// DefaultBackoff is [ExponentialBackoff] with 50ms base, 2x multiplier, 5s cap.
var DefaultBackoff = ExponentialBackoff(50*time.Millisecond, 2.0, 5*time.Second)

type batchOpts struct {
	maxRetries int
	timeout    time.Duration
	backoff    BackoffFunc
}
