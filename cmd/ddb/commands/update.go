package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/acksell/ddbcli/dynamodb/ddbsdk"
	"github.com/acksell/ddbcli/dynamodb/itemjson"
	"github.com/spf13/cobra"
)

func (a *App) installUpdate() {
	var (
		remove    []string
		condition string
	)

	cmd := &cobra.Command{
		Use:   "update [TABLE] HASH_KEY [RANGE_KEY] [ATTR=JSON...]",
		Short: "Set or remove attributes of an item",
		Long: `Set attributes of an item to JSON values and print the updated item.
The item is created when it does not exist.

Without assignments or --remove, a JSON object of attributes to set is read from stdin.
Conditions have the form "ATTR OP [JSON]" where OP is one of eq, ne, lt, lte, gt,
gte, begins_with, between (with a JSON array of two values), exists or not_exists.`,
		Example: `  ddb update users alice 'age=31' 'tags=["admin"]'
  ddb update users alice --remove nickname --condition 'version eq 3' version=4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tableName, args, err := a.tableArgs(args)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return a.usageErrorf("update expects HASH_KEY [RANGE_KEY] [ATTR=JSON...]")
			}

			req := ddbsdk.UpdateRequest{Remove: remove}
			if condition != "" {
				c, err := ddbsdk.ParseCondition(condition)
				if err != nil {
					return a.usageErrorf("%v", err)
				}
				req.Condition = &c
			}

			return a.withClient(cmd.Context(), func(c *ddbsdk.Client) error {
				def, err := c.TableDefinition(cmd.Context(), tableName)
				if err != nil {
					return err
				}
				nKeys := len(def.KeyDefinitions.Names())
				if len(args) < nKeys {
					return a.usageErrorf("table %s needs %d key values: %s", tableName, nKeys, strings.Join(def.KeyDefinitions.Names(), ", "))
				}
				keyValues, assignments := args[:nKeys], args[nKeys:]

				if len(assignments) == 0 && len(remove) == 0 {
					req.Set, err = readAttributes(cmd.InOrStdin())
				} else {
					req.Set, err = parseAssignments(assignments)
				}
				if err != nil {
					return err
				}

				item, err := c.UpdateItem(cmd.Context(), tableName, keyValues, req)
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
	cmd.Flags().StringArrayVarP(&remove, "remove", "r", nil, "attribute to remove, can be repeated")
	cmd.Flags().StringVarP(&condition, "condition", "c", "", `only update when the condition holds, such as "version eq 3"`)

	a.cmd.AddCommand(cmd)
}

// parseAssignments parses ATTR=JSON arguments. Later assignments of the same
// attribute win.
func parseAssignments(args []string) (map[string]any, error) {
	set := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected ATTR=JSON", arg)
		}
		v, err := itemjson.Parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		set[name] = v
	}
	return set, nil
}

// readAttributes reads a JSON object of attributes to set.
func readAttributes(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("nothing to update: pass ATTR=JSON arguments, --remove or a JSON object on stdin")
	}
	v, err := itemjson.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("could not read attributes from stdin: %w", err)
	}
	set, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("could not read attributes from stdin: %w: expected a JSON object", itemjson.ErrInvalidItem)
	}
	return set, nil
}
