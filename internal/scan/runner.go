package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boostd/internal/model"
	"boostd/internal/storage"
)

// progressStore is the slice of the store a scan run needs for
// checkpoints and the gap ledger.
type progressStore interface {
	storage.CheckpointStore
	storage.GapStore
}

// runConfig describes one scan run over a closed block range.
type runConfig struct {
	Kind        model.ScanKind
	Chain       string
	FromBlock   uint64
	ToBlock     uint64
	ChunkSize   uint64
	Concurrency int
}

// chunkFunc fetches and ingests one chunk. It must be idempotent:
// chunks may be re-run after a crash or out of the gap ledger.
type chunkFunc func(ctx context.Context, blockRange BlockRange) error

// runChunks drives a chunked scan. The range is resumed from the stored
// checkpoint, chunks are fetched with bounded concurrency, and every
// failed chunk is durably recorded as a gap before the scan moves on.
// The checkpoint advances to ToBlock only once every chunk has either
// succeeded or been recorded; it never advances on a hard error.
func runChunks(ctx context.Context, cfg runConfig, store progressStore, logger *zap.Logger, scanChunk chunkFunc) error {
	if cfg.ChunkSize == 0 {
		return fmt.Errorf("chunk size must be greater than zero")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	from := cfg.FromBlock
	last, ok, err := store.Checkpoint(ctx, cfg.Kind, cfg.Chain)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if ok && last >= from {
		from = last + 1
		logger.Info("resume from checkpoint",
			zap.String("kind", string(cfg.Kind)),
			zap.String("chain", cfg.Chain),
			zap.Uint64("last_processed", last),
			zap.Uint64("from", from),
		)
	}

	if from > cfg.ToBlock {
		logger.Info("nothing to scan",
			zap.String("kind", string(cfg.Kind)),
			zap.String("chain", cfg.Chain),
			zap.Uint64("from", from),
			zap.Uint64("to", cfg.ToBlock),
		)
		return nil
	}

	ranges, err := SplitRange(from, cfg.ToBlock, cfg.ChunkSize)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		gapped int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Concurrency)
	for _, blockRange := range ranges {
		blockRange := blockRange
		group.Go(func() error {
			err := scanChunk(groupCtx, blockRange)
			if err == nil {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			logger.Warn("chunk failed, recording gap",
				zap.String("kind", string(cfg.Kind)),
				zap.String("chain", cfg.Chain),
				zap.Uint64("from", blockRange.From),
				zap.Uint64("to", blockRange.To),
				zap.Error(err),
			)
			gap := model.ScanGap{
				Kind:      cfg.Kind,
				Chain:     cfg.Chain,
				FromBlock: blockRange.From,
				ToBlock:   blockRange.To,
				Attempts:  1,
				LastError: err.Error(),
			}
			if gapErr := store.RecordGap(groupCtx, gap); gapErr != nil {
				// Losing the gap record would silently swallow the range.
				return fmt.Errorf("record gap %d-%d: %w", blockRange.From, blockRange.To, gapErr)
			}
			mu.Lock()
			gapped++
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := store.SaveCheckpoint(ctx, model.ScanCheckpoint{
		Kind:               cfg.Kind,
		Chain:              cfg.Chain,
		LastProcessedBlock: cfg.ToBlock,
	}); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if gapped > 0 {
		logger.Warn("scan finished with gaps",
			zap.String("kind", string(cfg.Kind)),
			zap.String("chain", cfg.Chain),
			zap.Int("gaps", gapped),
		)
	} else {
		logger.Info("scan complete",
			zap.String("kind", string(cfg.Kind)),
			zap.String("chain", cfg.Chain),
			zap.Uint64("from", from),
			zap.Uint64("to", cfg.ToBlock),
		)
	}
	return nil
}
