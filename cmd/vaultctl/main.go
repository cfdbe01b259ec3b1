package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"medici/pkg/config"
	"medici/pkg/contracts"
	"medici/pkg/deployments"
	"medici/pkg/ledger/evm"
	"medici/pkg/metrics"
	"medici/pkg/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath     string
	networkName    string
	rpcOverride    string
	deploymentsDir string
	metricsOut     string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "Deploy and operate Safe strategy / bridge modules",
	Long: `vaultctl provisions the Auth/Ext registries, deploys strategy and bridge
modules, enables them on a Gnosis Safe and drives the deposit / withdraw /
harvest / bridge lifecycle.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
		} else {
			log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "medici.yaml", "Network configuration file (.yaml/.toml/.json)")
	pf.StringVar(&networkName, "network", "", "Network name (default: default_network from config)")
	pf.StringVar(&rpcOverride, "rpc", "", "Override the network RPC URL")
	pf.StringVar(&deploymentsDir, "deployments", "", "Override the deployments directory")
	pf.StringVar(&metricsOut, "metrics-out", "", "Write step metrics to this node-exporter textfile on exit")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging with microsecond timestamps")

	rootCmd.AddCommand(deployCmd, infoCmd, statsCmd, listModulesCmd, listPoolsCmd, disableModulesCmd,
		depositCmd, withdrawCmd, harvestCmd, bridgeCmd, importBroadcastCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// session 一次命令执行所需的环境、账本与编排器
type session struct {
	env     *config.Environment
	ledger  *evm.Ledger
	orch    *vault.Orchestrator
	metrics *metrics.Recorder
	runID   string
}

// loadEnv 读取配置并解析网络；devAccounts 用于序号形式的命名账户
func loadEnv(devAccounts []common.Address) (*config.Environment, error) {
	file, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	env, err := file.Resolve(networkName, devAccounts)
	if err != nil {
		return nil, err
	}
	return env.WithOverrides(rpcOverride, deploymentsDir), nil
}

// openSession 连接节点并创建编排器
func openSession(ctx context.Context, opts ...vault.Option) (*session, error) {
	env, err := loadEnv(nil)
	if err != nil {
		return nil, err
	}
	if env.RPC() == "" {
		return nil, fmt.Errorf("network %s has no rpc url", env.Network())
	}
	rc, err := rpc.DialContext(ctx, env.RPC())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", env.RPC(), err)
	}

	// 开发节点的 eth_accounts 用于解析序号账户，正式网络忽略
	if !env.Live() {
		var accounts []common.Address
		if err := rc.CallContext(ctx, &accounts, "eth_accounts"); err == nil && len(accounts) > 0 {
			if env, err = loadEnv(accounts); err != nil {
				rc.Close()
				return nil, err
			}
		}
	}

	ledgerOpts := []evm.Option{}
	if dir := env.ArtifactsDir(); dir != "" {
		ledgerOpts = append(ledgerOpts, evm.WithArtifacts(contracts.NewDirArtifacts(dir)))
	}
	if env.DevRPC() != "" {
		ledgerOpts = append(ledgerOpts, evm.WithDevRPC(env.DevRPC()))
	}
	for _, name := range env.AccountNames() {
		if key, err := env.Key(name); err == nil {
			ledgerOpts = append(ledgerOpts, evm.WithKey(key))
		}
	}
	ledger, err := evm.NewWithClient(ctx, rc, ledgerOpts...)
	if err != nil {
		rc.Close()
		return nil, err
	}
	if fork := env.Fork(); fork != nil && ledger.Dev() != nil {
		log.Printf("[EVM] Forking %s at block %d", fork.URL, fork.BlockNumber)
		if err := ledger.Dev().Reset(ctx, fork.URL, fork.BlockNumber); err != nil {
			ledger.Close()
			return nil, err
		}
	}

	s := &session{env: env, ledger: ledger, metrics: metrics.NewRecorder(), runID: uuid.NewString()}
	store := deployments.NewDirStore(env.DeploymentsDir(), env.Network())
	s.orch = vault.New(ledger, append([]vault.Option{
		vault.WithStore(store),
		vault.WithObserver(s.metrics),
		vault.WithRunID(s.runID),
	}, opts...)...)
	log.Printf("[Pipeline] network %s, run %s", env.Network(), s.runID)
	return s, nil
}

// Close 写出指标并断开连接
func (s *session) Close() {
	if metricsOut != "" {
		if err := s.metrics.WriteTextfile(metricsOut); err != nil {
			log.Printf("[Pipeline] failed to write metrics: %v", err)
		}
	}
	s.ledger.Close()
}

// address 命名账户或十六进制地址
func (s *session) address(value string) (common.Address, error) {
	if addr, err := s.env.Account(value); err == nil {
		return addr, nil
	}
	if common.IsHexAddress(value) {
		return common.HexToAddress(value), nil
	}
	return common.Address{}, fmt.Errorf("%q is neither a named account nor an address", value)
}

// module 部署记录名、命名账户或地址
func (s *session) module(value string) (common.Address, error) {
	if rec, err := s.orch.Store().GetOrNull(value); err == nil && rec != nil {
		return rec.Address, nil
	}
	return s.address(value)
}
