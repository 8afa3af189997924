package commands

import (
	"log/slog"

	"github.com/acksell/ddbcli/dynamodb/ddbsdk"
	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/spf13/cobra"
)

func (a *App) installCreateTable() {
	var hashKey, rangeKey string

	cmd := &cobra.Command{
		Use:   "create-table [TABLE]",
		Short: "Create an on-demand table",
		Long: `Create a table with on-demand billing and the given key schema.
Keys are given as NAME or NAME:TYPE where TYPE is S (default), N or B.`,
		Example: `  ddb create-table users --hash-key id
  ddb create-table events --hash-key stream --range-key seq:N`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tableName, args, err := a.tableArgs(args)
			if err != nil {
				return err
			}
			if len(args) != 0 {
				return a.usageErrorf("create-table takes no arguments besides the table, got %q", args)
			}

			if hashKey == "" {
				return a.usageErrorf("--hash-key is required")
			}

			def := table.TableDefinition{Name: tableName}
			if def.KeyDefinitions.PartitionKey, err = table.ParseKeyDef(hashKey); err != nil {
				return a.usageErrorf("--hash-key: %v", err)
			}
			if rangeKey != "" {
				if def.KeyDefinitions.SortKey, err = table.ParseKeyDef(rangeKey); err != nil {
					return a.usageErrorf("--range-key: %v", err)
				}
			}

			return a.withClient(cmd.Context(), func(c *ddbsdk.Client) error {
				if err := c.CreateTable(cmd.Context(), def); err != nil {
					return err
				}
				slog.Info("Created table", "table", tableName, "keys", def.KeyDefinitions.Names())
				return nil
			})
		},
	}
	// Not marked required: cobra would only report it after PersistentPreRunE, as a runtime error.
	cmd.Flags().StringVar(&hashKey, "hash-key", "", "hash key attribute as NAME[:TYPE] (required)")
	cmd.Flags().StringVar(&rangeKey, "range-key", "", "range key attribute as NAME[:TYPE]")

	a.cmd.AddCommand(cmd)
}
