package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"boostd/internal/model"
	"boostd/internal/scan"
)

func runScanSettlements(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rt.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	scanner, err := scan.NewSettlementScanner(scan.SettlementConfig{
		Chain:       rt.params.Name,
		Contracts:   rt.params.Settlements,
		ChunkSize:   rt.cfg.SettlementChunkSize,
		Concurrency: rt.cfg.Concurrency,
	}, client, store, rt.logger)
	if err != nil {
		return err
	}

	rt.logger.Info("settlement scan start",
		zap.String("chain", rt.params.Name),
		zap.Uint64("from", rt.cfg.FromBlock),
		zap.Uint64("to", rt.cfg.ToBlock),
		zap.Uint64("chunk_size", rt.cfg.SettlementChunkSize),
	)
	return scanner.Run(ctx, rt.cfg.FromBlock, rt.cfg.ToBlock)
}

func runScanStaking(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rt.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	wallets, err := trackedWallets(ctx, store)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return fmt.Errorf("no tracked wallets; run scan-settlements or import-settlements first")
	}

	scanner, err := scan.NewStakingScanner(scan.StakingConfig{
		Chain:       rt.params.Name,
		Token:       rt.params.SePSP2,
		Wallets:     wallets,
		ChunkSize:   rt.cfg.StakingChunkSize,
		Concurrency: rt.cfg.Concurrency,
	}, client, store, rt.logger)
	if err != nil {
		return err
	}

	rt.logger.Info("staking scan start",
		zap.String("chain", rt.params.Name),
		zap.Uint64("from", rt.cfg.FromBlock),
		zap.Uint64("to", rt.cfg.ToBlock),
		zap.Int("wallets", len(wallets)),
		zap.Uint64("chunk_size", rt.cfg.StakingChunkSize),
	)
	return scanner.Run(ctx, rt.cfg.FromBlock, rt.cfg.ToBlock)
}

func runRetryGaps(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	kindFlag, _ := cmd.Flags().GetString("kind")
	var kind model.ScanKind
	switch kindFlag {
	case string(model.ScanSettlements):
		kind = model.ScanSettlements
	case string(model.ScanStaking):
		kind = model.ScanStaking
	default:
		return fmt.Errorf("kind must be %q or %q", model.ScanSettlements, model.ScanStaking)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rt.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var scanChunk func(context.Context, scan.BlockRange) error
	switch kind {
	case model.ScanSettlements:
		scanner, err := scan.NewSettlementScanner(scan.SettlementConfig{
			Chain:       rt.params.Name,
			Contracts:   rt.params.Settlements,
			ChunkSize:   rt.cfg.SettlementChunkSize,
			Concurrency: rt.cfg.Concurrency,
		}, client, store, rt.logger)
		if err != nil {
			return err
		}
		scanChunk = scanner.ScanChunk
	case model.ScanStaking:
		wallets, err := trackedWallets(ctx, store)
		if err != nil {
			return err
		}
		scanner, err := scan.NewStakingScanner(scan.StakingConfig{
			Chain:       rt.params.Name,
			Token:       rt.params.SePSP2,
			Wallets:     wallets,
			ChunkSize:   rt.cfg.StakingChunkSize,
			Concurrency: rt.cfg.Concurrency,
		}, client, store, rt.logger)
		if err != nil {
			return err
		}
		scanChunk = scanner.ScanChunk
	}

	return scan.RetryGaps(ctx, store, rt.logger, kind, rt.params.Name, rt.retryPolicy(), scanChunk)
}

func runImportSettlements(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	inPath, _ := cmd.Flags().GetString("in")
	if inPath == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	file, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	contracts := make(map[string]string, len(rt.params.Settlements))
	for addr, label := range rt.params.Settlements {
		contracts[lowerHex(addr)] = label
	}

	_, err = scan.ImportSettlements(ctx, scan.ImportConfig{
		Chain:     rt.params.Name,
		ChainID:   rt.params.ChainID,
		Contracts: contracts,
	}, file, store, rt.logger)
	return err
}
