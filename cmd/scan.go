package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pactwatch/contract-cli/internal/store"
)

var scanSave bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Flag expired and soon-to-expire contracts",
	Long:  "Classifies every stored contract against its end date and generates a web-researched renewal advisory for each flagged one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("scan"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Store.ListContracts(ctx, store.ContractFilter{Limit: 1000})
		if err != nil {
			return eris.Wrap(err, "list contracts")
		}

		alerts, err := env.Scanner.Scan(ctx, recs)
		if err != nil {
			return eris.Wrap(err, "scan")
		}

		if scanSave && len(alerts) > 0 {
			if err := env.Store.SaveAlerts(ctx, alerts); err != nil {
				return err
			}
			zap.L().Info("alerts saved", zap.Int("count", len(alerts)))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "persist alerts to the store")
	rootCmd.AddCommand(scanCmd)
}
