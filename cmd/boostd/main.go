package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"boostd/internal/balance"
	"boostd/internal/chain"
	"boostd/internal/config"
	"boostd/internal/storage"
	"boostd/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "boostd",
		Short:        "Gas-refund scoring pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("chain", "mainnet", "network to operate on (mainnet, optimism)")
	root.PersistentFlags().String("rpc", "", "RPC URL for the selected chain")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	scanSettlementsCmd := &cobra.Command{
		Use:   "scan-settlements",
		Short: "Scan blocks for settlement transactions",
		RunE:  runScanSettlements,
	}
	addRangeFlags(scanSettlementsCmd)
	root.AddCommand(scanSettlementsCmd)

	scanStakingCmd := &cobra.Command{
		Use:   "scan-staking",
		Short: "Scan staking-token events for tracked wallets",
		RunE:  runScanStaking,
	}
	addRangeFlags(scanStakingCmd)
	root.AddCommand(scanStakingCmd)

	retryGapsCmd := &cobra.Command{
		Use:   "retry-gaps",
		Short: "Retry block ranges recorded in the gap ledger",
		RunE:  runRetryGaps,
	}
	retryGapsCmd.Flags().String("kind", "", "scan kind to retry (settlements, staking)")
	addRangeFlags(retryGapsCmd)
	root.AddCommand(retryGapsCmd)

	importSettlementsCmd := &cobra.Command{
		Use:   "import-settlements",
		Short: "Import validated settlement rows from an exported CSV",
		RunE:  runImportSettlements,
	}
	importSettlementsCmd.Flags().String("in", "", "input CSV path")
	root.AddCommand(importSettlementsCmd)

	fetchPricesCmd := &cobra.Command{
		Use:   "fetch-prices",
		Short: "Fetch the quote-currency price series from the HTTP API",
		RunE:  runFetchPrices,
	}
	fetchPricesCmd.Flags().String("price-endpoint", "", "historical price API endpoint")
	fetchPricesCmd.Flags().String("price-symbol", "ETH", "price symbol")
	fetchPricesCmd.Flags().String("start", "", "series start (unix seconds or RFC3339)")
	fetchPricesCmd.Flags().String("end", "", "series end (unix seconds or RFC3339), empty means now")
	root.AddCommand(fetchPricesCmd)

	importPricesCmd := &cobra.Command{
		Use:   "import-prices",
		Short: "Import a price series from a CSV file",
		RunE:  runImportPrices,
	}
	importPricesCmd.Flags().String("in", "", "input CSV path (timestamp,price)")
	root.AddCommand(importPricesCmd)

	epochBalancesCmd := &cobra.Command{
		Use:   "epoch-balances",
		Short: "Rebuild the per-epoch balance cache for all staking users",
		RunE:  runEpochBalances,
	}
	epochBalancesCmd.Flags().StringSlice("balance-rpc", nil, "balance sources as chain=rpc-url pairs")
	epochBalancesCmd.Flags().String("reference", "", "reference time (unix seconds or RFC3339), empty means now")
	epochBalancesCmd.Flags().Int("last-epoch", 0, "number of the most recent epoch window")
	epochBalancesCmd.Flags().Int("concurrency", 4, "users processed in parallel")
	root.AddCommand(epochBalancesCmd)

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Compute gas-refund scores and boosts for stored settlements",
		RunE:  runScore,
	}
	scoreCmd.Flags().StringSlice("balance-rpc", nil, "balance sources as chain=rpc-url pairs")
	scoreCmd.Flags().Int("concurrency", 8, "users scored in parallel")
	root.AddCommand(scoreCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64("from", 0, "start block (inclusive), 0 means the chain preset")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means the chain preset")
	cmd.Flags().Uint64("settlement-chunk-size", 1000, "blocks per settlement chunk")
	cmd.Flags().Uint64("staking-chunk-size", 10000, "blocks per staking chunk")
	cmd.Flags().Int("concurrency", 4, "chunks fetched in parallel")
	cmd.Flags().Duration("cooldown", 200*time.Millisecond, "pause after each batch round trip")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
}

// runtime is the shared setup of every subcommand: merged config, chain
// presets, and a logger.
type runtime struct {
	cfg    config.Config
	params config.ChainParams
	logger *zap.Logger
}

func loadRuntime(cmd *cobra.Command) (runtime, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return runtime{}, err
	}

	params, err := config.Chain(cfg.Chain)
	if err != nil {
		return runtime{}, err
	}
	if cfg.FromBlock == 0 {
		cfg.FromBlock = params.DefaultFromBlock
	}
	if cfg.ToBlock == 0 {
		cfg.ToBlock = params.DefaultToBlock
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return runtime{}, err
	}

	return runtime{cfg: cfg, params: params, logger: logger}, nil
}

func (r runtime) retryPolicy() chain.RetryPolicy {
	return chain.RetryPolicy{
		MaxAttempts: r.cfg.MaxRetries,
		BaseDelay:   r.cfg.RetryBackoff,
	}
}

func (r runtime) dial(ctx context.Context) (*chain.Client, error) {
	if r.cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := chain.NewClient(ctx, r.cfg.RPCURL, r.cfg.Cooldown, r.retryPolicy(), r.logger)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	return client, nil
}

func (r runtime) openStore(ctx context.Context) (*postgres.Store, error) {
	if r.cfg.PGDSN == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	store, err := postgres.NewStore(ctx, r.cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// balanceSources dials one client per chain=rpc-url pair and exposes
// each as a current-balance source for the reconstructor. Holder
// balances are fetched in one batched eth_call round trip per chain on
// first use. With no pairs given, the selected chain and its --rpc URL
// form the only source.
func (r runtime) balanceSources(ctx context.Context, pairs, holders []string) ([]balance.ChainSource, func(), error) {
	if len(pairs) == 0 {
		pairs = []string{r.cfg.Chain + "=" + r.cfg.RPCURL}
	}

	var (
		sources []balance.ChainSource
		clients []*chain.Client
	)
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	for _, pair := range pairs {
		name, rpcURL, ok := splitPair(pair)
		if !ok || rpcURL == "" {
			closeAll()
			return nil, nil, fmt.Errorf("invalid balance-rpc value %q, want chain=rpc-url", pair)
		}
		params, err := config.Chain(name)
		if err != nil {
			closeAll()
			return nil, nil, err
		}

		client, err := chain.NewClient(ctx, rpcURL, r.cfg.Cooldown, r.retryPolicy(), r.logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect %s rpc: %w", name, err)
		}
		clients = append(clients, client)

		token := params.SePSP2
		sources = append(sources, balance.NewBatchSource(params.Name, holders,
			func(ctx context.Context, holders []string) ([]*big.Int, error) {
				addrs := make([]common.Address, len(holders))
				for i, holder := range holders {
					addrs[i] = common.HexToAddress(holder)
				}
				return client.BalancesAt(ctx, token, addrs, nil)
			}))
	}
	return sources, closeAll, nil
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func splitPair(pair string) (name, value string, ok bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			return pair[:i], pair[i+1:], true
		}
	}
	return "", "", false
}

// trackedWallets collects the distinct settlement users across all
// configured chains; they are the wallets whose staking events matter.
func trackedWallets(ctx context.Context, store storage.SettlementStore) ([]common.Address, error) {
	seen := make(map[common.Address]struct{})
	for _, name := range config.ChainNames() {
		txs, err := store.Settlements(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("settlements for %s: %w", name, err)
		}
		for _, tx := range txs {
			seen[common.HexToAddress(tx.User)] = struct{}{}
		}
	}

	wallets := make([]common.Address, 0, len(seen))
	for wallet := range seen {
		wallets = append(wallets, wallet)
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Hex() < wallets[j].Hex() })
	return wallets, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
