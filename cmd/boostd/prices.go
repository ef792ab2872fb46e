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

	"boostd/internal/config"
	"boostd/internal/price"
)

func runFetchPrices(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	if rt.cfg.PriceEndpoint == "" {
		return fmt.Errorf("price endpoint is required")
	}

	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")
	startTs, err := config.ParseTimestamp(startFlag)
	if err != nil {
		return fmt.Errorf("parse start: %w", err)
	}
	if startTs == 0 {
		return fmt.Errorf("series start is required")
	}
	endTs, err := config.ParseTimestamp(endFlag)
	if err != nil {
		return fmt.Errorf("parse end: %w", err)
	}

	start := time.Unix(int64(startTs), 0).UTC()
	end := time.Now().UTC()
	if endTs != 0 {
		end = time.Unix(int64(endTs), 0).UTC()
	}
	if !end.After(start) {
		return fmt.Errorf("end must be after start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	fetcher := price.NewFetcher(rt.cfg.PriceEndpoint, rt.cfg.PriceSymbol, rt.retryPolicy(), rt.logger)
	points, err := fetcher.FetchRange(ctx, start, end)
	if err != nil {
		return err
	}

	inserted, err := store.InsertPricePoints(ctx, points)
	if err != nil {
		return fmt.Errorf("store prices: %w", err)
	}
	rt.logger.Info("price series fetched",
		zap.String("symbol", rt.cfg.PriceSymbol),
		zap.Int("points", len(points)),
		zap.Int("inserted", inserted),
	)
	return nil
}

func runImportPrices(cmd *cobra.Command, _ []string) error {
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

	points, err := price.ReadCSV(file)
	if err != nil {
		return err
	}

	inserted, err := store.InsertPricePoints(ctx, points)
	if err != nil {
		return fmt.Errorf("store prices: %w", err)
	}
	rt.logger.Info("price series imported",
		zap.String("path", inPath),
		zap.Int("points", len(points)),
		zap.Int("inserted", inserted),
	)
	return nil
}
