package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/acksell/ddbcli/dynamodb/ddbsdk"
	"github.com/acksell/ddbcli/dynamodb/itemjson"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (a *App) installPut() {
	var autoKey bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "put [TABLE] [JSON...]",
		Short: "Write items to a table",
		Long: `Write items given as JSON objects, replacing items with the same key.

Without JSON arguments, items are read from stdin as a JSON array, a single
object or a sequence of objects. Items are written in batches of 25. When
several items share a key, the last one is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tableName, args, err := a.tableArgs(args)
			if err != nil {
				return err
			}
			if timeout < 0 {
				return a.usageErrorf("--timeout must not be negative, got %s", timeout)
			}
			items, err := readItems(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var opts []ddbsdk.Option
			if timeout > 0 {
				opts = append(opts, ddbsdk.WithBatchOptions(ddbsdk.WithTimeout(timeout)))
			}

			return a.withClient(cmd.Context(), func(c *ddbsdk.Client) error {
				var generated []itemjson.Item
				if autoKey {
					def, err := c.TableDefinition(cmd.Context(), tableName)
					if err != nil {
						return err
					}
					if generated, err = fillHashKeys(def, items); err != nil {
						return err
					}
				}

				if err := c.PutItems(cmd.Context(), tableName, items...); err != nil {
					return err
				}
				slog.Info("Wrote items", "table", tableName, "count", len(items))

				if len(generated) == 0 {
					return nil
				}
				keys, err := itemjson.EncodeAll(generated)
				if err != nil {
					return err
				}
				return a.print(cmd, keys)
			}, opts...)
		},
	}
	cmd.Flags().BoolVar(&autoKey, "auto-key", false, "generate a UUID hash key for items without one, and print the generated keys")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up retrying unprocessed batch writes after this long, such as 30s (0 means no limit)")

	a.cmd.AddCommand(cmd)
}

// readItems decodes one item per argument, or the items on stdin without arguments.
func readItems(stdin io.Reader, args []string) ([]itemjson.Item, error) {
	if len(args) == 0 {
		items, err := itemjson.DecodeItems(stdin)
		if err != nil {
			return nil, fmt.Errorf("could not read items from stdin: %w", err)
		}
		if len(items) == 0 {
			return nil, errors.New("no items to put: pass JSON objects as arguments or on stdin")
		}
		return items, nil
	}

	items := make([]itemjson.Item, 0, len(args))
	for i, arg := range args {
		item, err := itemjson.Decode([]byte(arg))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// fillHashKeys sets a random UUID hash key on items that have none and returns
// the keys it generated.
func fillHashKeys(def table.TableDefinition, items []itemjson.Item) ([]itemjson.Item, error) {
	hashKey := def.KeyDefinitions.PartitionKey
	var generated []itemjson.Item
	for _, item := range items {
		if _, ok := item[hashKey.Name]; ok {
			continue
		}
		if hashKey.Kind != table.KeyKindS {
			return nil, fmt.Errorf("cannot generate hash key %s of type %s: only string keys can be generated", hashKey.Name, hashKey.Kind)
		}
		item[hashKey.Name] = &types.AttributeValueMemberS{Value: uuid.NewString()}

		pk, err := def.ExtractPrimaryKey(item)
		if err != nil {
			return nil, err
		}
		key, err := pk.DDB()
		if err != nil {
			return nil, err
		}
		generated = append(generated, key)
	}
	return generated, nil
}
