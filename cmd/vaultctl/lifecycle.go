package main

import (
	"fmt"
	"io"
	"strings"

	"medici/pkg/quote"
	"medici/pkg/safe"
	"medici/pkg/types"
	"medici/pkg/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

// lifecycleFlags deposit / withdraw / harvest 共用的参数
type lifecycleFlags struct {
	from     string
	safe     string
	strategy string
	pool     uint64
	amount   string
	data     string
	nosend   bool
}

func (f *lifecycleFlags) register(cmd *cobra.Command, withAmount bool) {
	cmd.Flags().StringVar(&f.from, "from", "deployer", "Caller holding the required role (named account or address)")
	cmd.Flags().StringVar(&f.safe, "safe", "safe", "Safe owning the position (named account or address)")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "Strategy (deployment name or address)")
	cmd.Flags().Uint64Var(&f.pool, "pool", 0, "Pool id")
	cmd.Flags().StringVar(&f.data, "data", "0x", "Additional hex data passed to the strategy")
	_ = cmd.MarkFlagRequired("strategy")
	if withAmount {
		cmd.Flags().StringVar(&f.amount, "amount", "", "Human readable amount, scaled by the deposit token decimals")
		cmd.Flags().BoolVar(&f.nosend, "nosend", false, "Print the calldata instead of sending the transaction")
		_ = cmd.MarkFlagRequired("amount")
	}
}

// target 解析调用者、safe 与策略
func (f *lifecycleFlags) target(s *session) (vault.Target, error) {
	t := vault.Target{Pool: f.pool}
	var err error
	if t.Caller, err = s.address(f.from); err != nil {
		return t, err
	}
	if t.Safe, err = s.address(f.safe); err != nil {
		return t, err
	}
	if t.Module, err = s.module(f.strategy); err != nil {
		return t, err
	}
	return t, nil
}

func printUnsigned(w io.Writer, action string, u *vault.Unsigned) {
	fmt.Fprintf(w, "To %s send\nData: %s\nTo: %s\n", action, hexutil.Encode(u.Data), u.To.Hex())
}

var depositFlags lifecycleFlags

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit into a strategy pool on behalf of a Safe",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hexutil.Decode(depositFlags.data)
		if err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		ctx, out := cmd.Context(), cmd.OutOrStdout()

		t, err := depositFlags.target(s)
		if err != nil {
			return err
		}
		amount, err := s.orch.ParsePoolAmount(ctx, t.Module, t.Pool, depositFlags.amount)
		if err != nil {
			return err
		}
		if depositFlags.nosend {
			u, err := vault.DepositCall(t, amount, data)
			if err != nil {
				return err
			}
			printUnsigned(out, "deposit", u)
			return nil
		}

		fmt.Fprintf(out, "Depositing: %s\nFor Safe: %s\nInto Strategy: %s\n", depositFlags.amount, t.Safe.Hex(), t.Module.Hex())
		res, err := s.orch.Deposit(ctx, t, amount, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Successfully deposited %s (tx %s)\n", depositFlags.amount, res.Receipt.TxHash.Hex())
		return nil
	},
}

var (
	withdrawFlags   lifecycleFlags
	withdrawHarvest bool
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw from a strategy pool on behalf of a Safe",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hexutil.Decode(withdrawFlags.data)
		if err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		ctx, out := cmd.Context(), cmd.OutOrStdout()

		t, err := withdrawFlags.target(s)
		if err != nil {
			return err
		}
		amount, err := s.orch.ParsePoolAmount(ctx, t.Module, t.Pool, withdrawFlags.amount)
		if err != nil {
			return err
		}
		if withdrawFlags.nosend {
			u, err := vault.WithdrawCall(t, amount, withdrawHarvest, data)
			if err != nil {
				return err
			}
			printUnsigned(out, "withdraw", u)
			return nil
		}

		fmt.Fprintf(out, "Withdrawing: %s\nFor Safe: %s\nFrom Strategy: %s\n", withdrawFlags.amount, t.Safe.Hex(), t.Module.Hex())
		res, err := s.orch.Withdraw(ctx, t, amount, withdrawHarvest, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Successfully withdrawn %s (tx %s)\n", withdrawFlags.amount, res.Receipt.TxHash.Hex())
		return nil
	},
}

var (
	harvestFlags    lifecycleFlags
	harvestOutput   string
	harvestProvider string
	harvestRouters  []string
	harvestWrapped  string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Claim rewards of a strategy pool and swap them into the output token",
	Long: `harvest simulates the claim, asks the ExchangeDataProvider (--provider) for
the best swaps of every non-zero reward into --output, then calls harvest with
the encoded swaps. Without --provider the --data payload is passed as is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hexutil.Decode(harvestFlags.data)
		if err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		ctx, out := cmd.Context(), cmd.OutOrStdout()

		var quoter quote.Quoter = quote.Static(data)
		if harvestProvider != "" {
			provider := &quote.DataProvider{Ledger: s.ledger}
			if provider.Address, err = s.module(harvestProvider); err != nil {
				return err
			}
			for _, r := range harvestRouters {
				router, err := s.address(r)
				if err != nil {
					return err
				}
				provider.Routers = append(provider.Routers, router)
			}
			if harvestWrapped != "" {
				if provider.WrappedToken, err = s.address(harvestWrapped); err != nil {
					return err
				}
			}
			quoter = provider
		}
		orch := vault.New(s.ledger, vault.WithStore(s.orch.Store()), vault.WithObserver(s.metrics),
			vault.WithRunID(s.runID), vault.WithQuoter(quoter))

		t, err := harvestFlags.target(s)
		if err != nil {
			return err
		}
		var output common.Address
		if harvestOutput != "" {
			if output, err = s.address(harvestOutput); err != nil {
				return err
			}
		}
		res, err := orch.Harvest(ctx, t, output)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Harvested pool %d of %s (tx %s)\n", t.Pool, t.Module.Hex(), res.Receipt.TxHash.Hex())
		for _, h := range res.Harvests {
			fmt.Fprintf(out, "%s - %s\n", h.Token.Hex(), h.Amount)
		}
		return nil
	},
}

var (
	bridgeFrom     string
	bridgeSafe     string
	bridgeModule   string
	bridgeReceiver string
	bridgeChainID  types.ChainID
	bridgeL1       bool
	bridgeData     string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge Safe funds to a pre-approved receiver on another chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hexutil.Decode(bridgeData)
		if err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		caller, err := s.address(bridgeFrom)
		if err != nil {
			return err
		}
		safeAddr, err := s.address(bridgeSafe)
		if err != nil {
			return err
		}
		module, err := s.module(bridgeModule)
		if err != nil {
			return err
		}
		receiver, err := s.address(bridgeReceiver)
		if err != nil {
			return err
		}
		res, err := s.orch.BridgeTransfer(cmd.Context(), caller, module, safeAddr, receiver, bridgeChainID.Uint64(), bridgeL1, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bridged to chain %s receiver %s (tx %s)\n", bridgeChainID, receiver.Hex(), res.Receipt.TxHash.Hex())
		return nil
	},
}

var (
	disableSafe    string
	disableModules []string
	disableOutput  string
	disableSend    bool
	disableSigner  string
)

var disableModulesCmd = &cobra.Command{
	Use:   "disable-modules",
	Short: "Plan the removal of Safe modules and write a Transaction Builder batch",
	Long: `disable-modules reads the full module list of the Safe, computes every
(prevModule, module) pair against that snapshot and writes one disableModule
call per pair into --output. With --send the calls are executed directly
through the Safe instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var remove []common.Address
		for _, m := range disableModules {
			m = strings.TrimSpace(m)
			if !common.IsHexAddress(m) {
				return fmt.Errorf("invalid module address %q", m)
			}
			remove = append(remove, common.HexToAddress(m))
		}
		s, err := openSession(cmd.Context(), vault.WithPageSize(listPageSize))
		if err != nil {
			return err
		}
		defer s.Close()
		ctx, out := cmd.Context(), cmd.OutOrStdout()

		safeAddr, err := s.address(disableSafe)
		if err != nil {
			return err
		}
		if disableSend {
			signer, err := s.address(disableSigner)
			if err != nil {
				return err
			}
			actions, err := s.orch.DisableModules(ctx, safe.New(s.ledger, safeAddr, signer), remove)
			if err != nil {
				return err
			}
			for _, a := range actions {
				fmt.Fprintf(out, "disabled %s (prev %s)\n", a.Module.Hex(), a.Prev.Hex())
			}
			return nil
		}

		file, err := s.orch.DisableBatch(ctx, safeAddr, remove)
		if err != nil {
			return err
		}
		if err := file.Write(disableOutput); err != nil {
			return err
		}
		fmt.Fprintf(out, "Batch wrote to %s (%d transactions)\n", disableOutput, len(file.Transactions))
		return nil
	},
}

func init() {
	depositFlags.register(depositCmd, true)
	withdrawFlags.register(withdrawCmd, true)
	withdrawCmd.Flags().BoolVar(&withdrawHarvest, "harvest", false, "Harvest before withdrawing")

	harvestFlags.register(harvestCmd, false)
	harvestCmd.Flags().StringVar(&harvestOutput, "output", "", "Token the rewards are swapped into")
	harvestCmd.Flags().StringVar(&harvestProvider, "provider", "", "ExchangeDataProvider (deployment name or address)")
	harvestCmd.Flags().StringSliceVar(&harvestRouters, "routers", nil, "Swap routers offered to the provider")
	harvestCmd.Flags().StringVar(&harvestWrapped, "wrapped", "", "Wrapped native token used for routing")

	bridgeCmd.Flags().StringVar(&bridgeFrom, "from", "deployer", "Caller holding the bridge operator role")
	bridgeCmd.Flags().StringVar(&bridgeSafe, "safe", "safe", "Safe owning the funds")
	bridgeCmd.Flags().StringVar(&bridgeModule, "bridge", "", "Bridge module (deployment name or address)")
	bridgeCmd.Flags().StringVar(&bridgeReceiver, "receiver", "", "Receiver on the destination chain")
	bridgeCmd.Flags().Var(&bridgeChainID, "chain-id", "Destination chain id (decimal or 0x hex)")
	bridgeCmd.Flags().BoolVar(&bridgeL1, "l1", false, "Source chain is L1")
	bridgeCmd.Flags().StringVar(&bridgeData, "data", "0x", "Hex encoded bridge parameters")
	_ = bridgeCmd.MarkFlagRequired("bridge")
	_ = bridgeCmd.MarkFlagRequired("receiver")
	_ = bridgeCmd.MarkFlagRequired("chain-id")

	disableModulesCmd.Flags().StringVar(&disableSafe, "safe", "safe", "Safe (named account or address)")
	disableModulesCmd.Flags().StringSliceVar(&disableModules, "modules", nil, "Comma separated module addresses to disable")
	disableModulesCmd.Flags().StringVar(&disableOutput, "output", "disable-modules.json", "Batch file (.json/.yaml)")
	disableModulesCmd.Flags().BoolVar(&disableSend, "send", false, "Execute through the Safe instead of writing a batch")
	disableModulesCmd.Flags().StringVar(&disableSigner, "signer", "deployer", "Safe owner submitting execTransaction with --send")
	disableModulesCmd.Flags().IntVar(&listPageSize, "page-size", vault.DefaultPageSize, "getModulesPaginated page size")
	_ = disableModulesCmd.MarkFlagRequired("modules")
}
