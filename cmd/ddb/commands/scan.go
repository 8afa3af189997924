package commands

import (
	"github.com/acksell/ddbcli/dynamodb/ddbsdk"
	"github.com/acksell/ddbcli/dynamodb/itemjson"
	"github.com/spf13/cobra"
)

func (a *App) installScan() {
	var limit int

	cmd := &cobra.Command{
		Use:   "scan [TABLE]",
		Short: "Print all items of a table",
		Long:  "Print the items of a table as a JSON array, following pagination until the table or --limit is exhausted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tableName, args, err := a.tableArgs(args)
			if err != nil {
				return err
			}
			if len(args) != 0 {
				return a.usageErrorf("scan takes no arguments besides the table, got %q", args)
			}
			if limit < 0 {
				return a.usageErrorf("--limit must not be negative, got %d", limit)
			}

			return a.withClient(cmd.Context(), func(c *ddbsdk.Client) error {
				items, err := c.Scan(cmd.Context(), tableName, ddbsdk.ScanOptions{Limit: limit})
				if err != nil {
					return err
				}
				v, err := itemjson.EncodeAll(items)
				if err != nil {
					return err
				}
				return a.print(cmd, v)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of items to print, 0 for all")

	a.cmd.AddCommand(cmd)
}
