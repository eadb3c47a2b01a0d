package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	discoverContractID  string
	discoverRequirement string
	discoverSave        bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find comparable market offerings for a stored contract",
	Long:  "Generates search keywords from the contract and the stated requirement, searches the web, and synthesizes a comparison report over the deduplicated sources.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Store.GetContract(ctx, discoverContractID)
		if err != nil {
			return eris.Wrapf(err, "load contract %s", discoverContractID)
		}

		report, err := env.Discoverer.Discover(ctx, *rec, discoverRequirement)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		if discoverSave {
			saved, err := env.Store.SaveDiscovery(ctx, rec.ID, discoverRequirement, *report)
			if err != nil {
				return err
			}
			zap.L().Info("discovery saved", zap.String("id", saved.ID))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverContractID, "id", "", "contract ID (required)")
	discoverCmd.Flags().StringVar(&discoverRequirement, "requirement", "", "what the replacement service must do (required)")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "persist the discovery report to the store")
	_ = discoverCmd.MarkFlagRequired("id")
	_ = discoverCmd.MarkFlagRequired("requirement")
	rootCmd.AddCommand(discoverCmd)
}
