package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"boostd/internal/balance"
	"boostd/internal/boost"
	"boostd/internal/config"
	"boostd/internal/price"
	"boostd/internal/score"
)

func runScore(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	wallets, err := trackedWallets(ctx, store)
	if err != nil {
		return err
	}
	holders := make([]string, len(wallets))
	for i, wallet := range wallets {
		holders[i] = lowerHex(wallet)
	}

	pairs, _ := cmd.Flags().GetStringSlice("balance-rpc")
	sources, closeSources, err := rt.balanceSources(ctx, pairs, holders)
	if err != nil {
		return err
	}
	defer closeSources()

	points, err := store.PricePoints(ctx)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("price series is empty; run fetch-prices or import-prices first")
	}

	balances := balance.NewReconstructor(store, sources, rt.logger)
	engine := boost.NewEngine(store, store, balances, rt.logger)
	series := price.NewSeries(points, rt.logger)

	chains := make([]string, 0, len(sources))
	for _, source := range sources {
		chains = append(chains, source.Chain)
	}

	aggregator := score.NewAggregator(score.Config{
		Chains:      chains,
		Concurrency: rt.cfg.Concurrency,
	}, store, balances, engine, series, rt.logger)

	rt.logger.Info("scoring start",
		zap.String("chain", rt.params.Name),
		zap.Strings("balance_chains", chains),
	)
	return aggregator.Run(ctx, rt.params.Name)
}

func runEpochBalances(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	referenceFlag, _ := cmd.Flags().GetString("reference")
	referenceTs, err := config.ParseTimestamp(referenceFlag)
	if err != nil {
		return fmt.Errorf("parse reference: %w", err)
	}
	reference := time.Now().UTC()
	if referenceTs != 0 {
		reference = time.Unix(int64(referenceTs), 0).UTC()
	}

	lastEpoch, _ := cmd.Flags().GetInt("last-epoch")
	if lastEpoch <= 0 {
		return fmt.Errorf("last-epoch is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	holders, err := store.StakingUsers(ctx)
	if err != nil {
		return fmt.Errorf("list staking users: %w", err)
	}

	pairs, _ := cmd.Flags().GetStringSlice("balance-rpc")
	sources, closeSources, err := rt.balanceSources(ctx, pairs, holders)
	if err != nil {
		return err
	}
	defer closeSources()

	cache := score.NewEpochCache(store, sources, rt.cfg.Concurrency, rt.logger)

	rt.logger.Info("epoch balance rebuild start",
		zap.Time("reference", reference),
		zap.Int("last_epoch", lastEpoch),
	)
	return cache.Rebuild(ctx, reference, lastEpoch)
}
