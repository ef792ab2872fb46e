package chain

import (
	"context"
	"fmt"
)

// HeaderSource provides the block header lookups needed to resolve a
// timestamp to a block number.
type HeaderSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// BlockByTimestamp returns the highest block whose timestamp does not
// exceed target. It binary-searches block headers, relying on timestamps
// being monotonically non-decreasing.
func BlockByTimestamp(ctx context.Context, src HeaderSource, target uint64) (uint64, error) {
	latest, err := src.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}

	genesisTs, err := src.BlockTimestamp(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("genesis timestamp: %w", err)
	}
	if target < genesisTs {
		return 0, fmt.Errorf("timestamp %d predates the chain", target)
	}

	lo, hi := uint64(0), latest
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ts, err := src.BlockTimestamp(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("timestamp of block %d: %w", mid, err)
		}
		if ts <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}
