package scan

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"boostd/internal/chain"
	"boostd/internal/model"
	"boostd/internal/storage"
)

// RetryGaps re-runs every recorded gap of one scan kind through
// scanChunk with backoff. Resolved gaps leave the ledger; a gap that
// fails again has its attempt count bumped and stays for the next run.
func RetryGaps(ctx context.Context, store storage.GapStore, logger *zap.Logger, kind model.ScanKind, chainName string, policy chain.RetryPolicy, scanChunk chunkFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	gaps, err := store.ListGaps(ctx, kind, chainName)
	if err != nil {
		return fmt.Errorf("list gaps: %w", err)
	}
	if len(gaps) == 0 {
		logger.Info("no gaps to retry", zap.String("kind", string(kind)), zap.String("chain", chainName))
		return nil
	}

	var remaining int
	for _, gap := range gaps {
		blockRange := BlockRange{From: gap.FromBlock, To: gap.ToBlock}
		err := chain.WithBackoff(ctx, policy, func(ctx context.Context) error {
			return scanChunk(ctx, blockRange)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("gap retry failed",
				zap.Int64("gap_id", gap.ID),
				zap.Uint64("from", gap.FromBlock),
				zap.Uint64("to", gap.ToBlock),
				zap.Int("attempts", gap.Attempts+1),
				zap.Error(err),
			)
			if bumpErr := store.BumpGap(ctx, gap.ID, err.Error()); bumpErr != nil {
				return fmt.Errorf("bump gap %d: %w", gap.ID, bumpErr)
			}
			remaining++
			continue
		}

		if err := store.ResolveGap(ctx, gap.ID); err != nil {
			return fmt.Errorf("resolve gap %d: %w", gap.ID, err)
		}
		logger.Info("gap resolved",
			zap.Int64("gap_id", gap.ID),
			zap.Uint64("from", gap.FromBlock),
			zap.Uint64("to", gap.ToBlock),
		)
	}

	if remaining > 0 {
		return fmt.Errorf("%d of %d gaps still unresolved", remaining, len(gaps))
	}
	return nil
}
