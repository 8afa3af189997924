package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/acksell/ddbcli/dynamodb/ddbsdk"
	"github.com/acksell/ddbcli/dynamodb/itemjson"
	"github.com/spf13/cobra"
)

func (a *App) installGet() {
	cmd := &cobra.Command{
		Use:   "get [TABLE] HASH_KEY [RANGE_KEY]",
		Short: "Print the item with the given primary key",
		Long: `Print the item with the given primary key as JSON.

Tables with a range key need both key values. Number keys are given as decimal
text and binary keys as base64.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tableName, args, err := a.tableArgs(args)
			if err != nil {
				return err
			}
			if len(args) < 1 || len(args) > 2 {
				return a.usageErrorf("get expects HASH_KEY [RANGE_KEY], got %d arguments", len(args))
			}

			return a.withClient(cmd.Context(), func(c *ddbsdk.Client) error {
				item, err := c.GetItem(cmd.Context(), tableName, args...)
				if errors.Is(err, ddbsdk.ErrItemNotFound) {
					return fmt.Errorf("no item with key %q in table %s", strings.Join(args, " "), tableName)
				}
				if err != nil {
					return err
				}
				v, err := itemjson.Encode(item)
				if err != nil {
					return err
				}
				return a.print(cmd, v)
			})
		},
	}
	a.cmd.AddCommand(cmd)
}
