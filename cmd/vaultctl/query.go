package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"medici/pkg/deployments"
	"medici/pkg/vault"

	"github.com/spf13/cobra"
)

// infoRoles info 命令检查的命名账户及其角色
var infoRoles = []struct {
	account string
	role    vault.Role
}{
	{"operator", vault.RoleOperator},
	{"strategist", vault.RoleStrategist},
	{"harvester", vault.RoleHarvester},
}

var infoExternal []string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show registry owners, role holders and whitelisted addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		ctx, out := cmd.Context(), cmd.OutOrStdout()

		auth, err := s.orch.Store().Get(vault.AuthRegistryName)
		switch {
		case errors.Is(err, deployments.ErrNotFound):
			fmt.Fprintln(out, "AuthRegistry is not deployed!")
		case err != nil:
			return err
		default:
			owner, err := s.orch.RegistryOwner(ctx, auth.Address)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "======== AuthRegistry (%s) ========\n", auth.Address.Hex())
			fmt.Fprintf(out, "The safe for AuthRegistry is: %s\n", owner.Hex())
			for _, r := range infoRoles {
				addr, err := s.env.Account(r.account)
				if err != nil {
					fmt.Fprintf(out, "%s: not configured\n", r.account)
					continue
				}
				ok, err := s.orch.HasRole(ctx, auth.Address, addr, r.role)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (%s) has %s role: %t\n", r.account, addr.Hex(), r.role, ok)
			}
			fmt.Fprintln(out)
		}

		ext, err := s.orch.Store().Get(vault.ExtRegistryName)
		switch {
		case errors.Is(err, deployments.ErrNotFound):
			fmt.Fprintln(out, "ExtRegistry is not deployed!")
		case err != nil:
			return err
		default:
			owner, err := s.orch.RegistryOwner(ctx, ext.Address)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "======== ExtRegistry (%s) ========\n", ext.Address.Hex())
			fmt.Fprintf(out, "The safe for ExtRegistry is: %s\n", owner.Hex())
			for _, name := range infoExternal {
				addr, err := s.address(name)
				if err != nil {
					fmt.Fprintf(out, "%s: not configured\n", name)
					continue
				}
				ok, err := s.orch.IsExternalAddressAllowed(ctx, ext.Address, addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (%s) has been enabled: %t\n", name, addr.Hex(), ok)
			}
		}
		return nil
	},
}

var (
	statsSafe     string
	statsStrategy string
	statsPool     uint64
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show name, pool, deposit and claimable rewards of a strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		safeAddr, err := s.address(statsSafe)
		if err != nil {
			return err
		}
		strategy, err := s.module(statsStrategy)
		if err != nil {
			return err
		}
		st, err := s.orch.Stats(cmd.Context(), strategy, statsPool, safeAddr)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s - %s (%s)\n", st.Name, st.Pool.Name, st.Version)
		fmt.Fprintf(out, "Deposit Token: %s\n", st.Pool.DepositToken.Hex())
		fmt.Fprintf(out, "Deposit Amount: %s\n", st.Deposited)
		fmt.Fprintf(out, "\nHarvests:\n")
		for _, h := range st.Harvests {
			fmt.Fprintf(out, "%s - %s\n", h.Token.Hex(), h.Amount)
		}
		return nil
	},
}

var (
	listSafe     string
	listPageSize int
)

var listModulesCmd = &cobra.Command{
	Use:   "list-modules",
	Short: "List the modules enabled on a Safe",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), vault.WithPageSize(listPageSize))
		if err != nil {
			return err
		}
		defer s.Close()

		safeAddr, err := s.address(listSafe)
		if err != nil {
			return err
		}
		infos, err := s.orch.ListModules(cmd.Context(), safeAddr)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tADDRESS\tSTRATEGY")
		for _, m := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", m.Name, m.Version, m.Address.Hex(), m.IsStrategy)
		}
		return w.Flush()
	},
}

var (
	poolsStrategy string
	poolsStart    uint64
	poolsEnd      uint64
)

var listPoolsCmd = &cobra.Command{
	Use:   "list-pools",
	Short: "List the pools of a strategy in [start, end)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		strategy, err := s.module(poolsStrategy)
		if err != nil {
			return err
		}
		pools, err := s.orch.ListPools(cmd.Context(), strategy, poolsStart, poolsEnd)
		if err != nil {
			return err
		}
		for _, p := range pools {
			fmt.Fprintf(cmd.OutOrStdout(), "%d - %s (%s)\n", p.ID, p.Name, p.DepositToken.Hex())
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().StringSliceVar(&infoExternal, "external", []string{"oneinch"}, "Named accounts or addresses to check in ExtRegistry")

	statsCmd.Flags().StringVar(&statsSafe, "safe", "safe", "Safe (named account or address)")
	statsCmd.Flags().StringVar(&statsStrategy, "strategy", "", "Strategy (deployment name or address)")
	statsCmd.Flags().Uint64Var(&statsPool, "pool", 0, "Pool id")
	_ = statsCmd.MarkFlagRequired("strategy")

	listModulesCmd.Flags().StringVar(&listSafe, "safe", "safe", "Safe (named account or address)")
	listModulesCmd.Flags().IntVar(&listPageSize, "page-size", vault.DefaultPageSize, "getModulesPaginated page size")

	listPoolsCmd.Flags().StringVar(&poolsStrategy, "strategy", "", "Strategy (deployment name or address)")
	listPoolsCmd.Flags().Uint64Var(&poolsStart, "start", 0, "First pool id")
	listPoolsCmd.Flags().Uint64Var(&poolsEnd, "end", 0, "End of the range (exclusive)")
	_ = listPoolsCmd.MarkFlagRequired("strategy")
}
