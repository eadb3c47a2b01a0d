package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/store"
)

var (
	contractsProvider string
	contractsRenewal  string
	contractsEndingBy string
	contractsLimit    int
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Inspect stored contracts",
}

var contractsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		recs, err := st.ListContracts(ctx, store.ContractFilter{
			Provider:      contractsProvider,
			RenewalStatus: model.RenewalStatus(contractsRenewal),
			EndingBy:      contractsEndingBy,
			Limit:         contractsLimit,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

var contractsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one contract with its alerts and discovery runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		rec, err := st.GetContract(ctx, args[0])
		if err != nil {
			return err
		}
		alerts, err := st.ListAlerts(ctx, rec.ID)
		if err != nil {
			return err
		}
		discoveries, err := st.ListDiscoveries(ctx, rec.ID)
		if err != nil {
			return err
		}

		out := struct {
			Contract    *model.ContractRecord   `json:"contract"`
			Alerts      []model.ExpiryAlert     `json:"alerts,omitempty"`
			Discoveries []model.DiscoveryRecord `json:"discoveries,omitempty"`
		}{rec, alerts, discoveries}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var contractsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		return st.DeleteContract(ctx, args[0])
	},
}

func init() {
	contractsListCmd.Flags().StringVar(&contractsProvider, "provider", "", "filter by provider")
	contractsListCmd.Flags().StringVar(&contractsRenewal, "renewal", "", "filter by renewal status")
	contractsListCmd.Flags().StringVar(&contractsEndingBy, "ending-by", "", "only contracts ending on or before YYYY-MM-DD")
	contractsListCmd.Flags().IntVar(&contractsLimit, "limit", 100, "max contracts to return")
	contractsCmd.AddCommand(contractsListCmd, contractsGetCmd, contractsDeleteCmd)
	rootCmd.AddCommand(contractsCmd)
}
