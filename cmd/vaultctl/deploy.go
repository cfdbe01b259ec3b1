package main

import (
	"fmt"
	"strings"

	"medici/pkg/deployments"
	"medici/pkg/safe"
	"medici/pkg/vault"

	"github.com/spf13/cobra"
)

var (
	deployPlan   string
	deploySigner string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run the deployment pipeline described by a plan file",
	Long: `deploy provisions the registries (deployer-owned), seeds roles and the
external whitelist, hands the registries over to the Safe, then deploys,
enables and routes every module in the plan. Stages whose deployment record
already exists are skipped, so a failed run can simply be retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := vault.LoadPlan(deployPlan)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		safeAddr, err := s.address(plan.Safe)
		if err != nil {
			return err
		}
		signer, err := s.address(deploySigner)
		if err != nil {
			return err
		}
		result, err := s.orch.RunPipeline(cmd.Context(), plan, vault.PipelineEnv{
			Accounts:   s.env,
			Controller: safe.New(s.ledger, safeAddr, signer),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "AuthRegistry: %s\n", result.Registries.Auth.Hex())
		fmt.Fprintf(out, "ExtRegistry:  %s\n", result.Registries.Ext.Hex())
		for _, m := range result.Modules {
			fmt.Fprintf(out, "%s (%s, %s): %s\n", m.Name, m.Kind.Name, m.Kind.Variant, m.Address.Hex())
		}
		if len(result.Skipped) > 0 {
			fmt.Fprintf(out, "Skipped: %s\n", strings.Join(result.Skipped, ", "))
		}
		return nil
	},
}

var (
	broadcastFile  string
	broadcastNames []string
)

var importBroadcastCmd = &cobra.Command{
	Use:   "import-broadcast",
	Short: "Import CREATE deployments from a Foundry run-latest.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(nil)
		if err != nil {
			return err
		}
		store := deployments.NewDirStore(env.DeploymentsDir(), env.Network())
		records, err := deployments.ImportBroadcast(store, broadcastFile, broadcastNames)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", rec.Name, rec.Address.Hex())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d deployments into %s\n", len(records), store.Dir())
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVar(&deployPlan, "plan", "plan.yaml", "Deployment plan (.yaml/.json)")
	deployCmd.Flags().StringVar(&deploySigner, "signer", "deployer", "Safe owner submitting execTransaction")

	importBroadcastCmd.Flags().StringVar(&broadcastFile, "file", "", "Path to broadcast run-latest.json")
	importBroadcastCmd.Flags().StringSliceVar(&broadcastNames, "names", nil, "Only import these contract names")
	_ = importBroadcastCmd.MarkFlagRequired("file")
}
