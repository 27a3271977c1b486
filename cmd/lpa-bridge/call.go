package main

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/SimplyPrint/lpa-bridge/internal/bridge"
)

var (
	callColumns []string
	callJSON    bool
	callRaw     bool
)

var callCmd = &cobra.Command{
	Use:   "call <endpoint> [key=value ...]",
	Short: "Run a single bridge request and print the result table",
	Example: `  lpa-bridge call cards
  lpa-bridge call profiles slotId=0 portId=0 --columns iccid,enabled
  lpa-bridge call downloadProfile slotId=0 portId=0 activationCode='LPA:1$smdp.example.com$CODE'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		kv := splitPairs(args[1:])
		if callJSON {
			kv = append(kv, "json", "1")
		}
		req := bridge.Request{Endpoint: args[0], Args: bridge.NewArgs(kv...)}

		var columns []string
		for _, c := range callColumns {
			if c = strings.TrimSpace(c); c != "" {
				columns = append(columns, c)
			}
		}

		result := a.router.Dispatch(cmd.Context(), req, columns)
		a.notifier.Wait()

		out := cmd.OutOrStdout()
		if callRaw {
			data, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		} else {
			fmt.Fprintln(out, result.String())
		}

		if msg, failed := result.ErrorMessage(); failed {
			return fmt.Errorf("%s failed: %s", req.Endpoint, msg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringSliceVar(&callColumns, "columns", nil, "project the result onto these columns")
	callCmd.Flags().BoolVar(&callJSON, "json", false, "wrap the result in a single JSON rows cell")
	callCmd.Flags().BoolVar(&callRaw, "raw", false, "print the table as {columns, rows} JSON")
}
