package score

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boostd/internal/balance"
	"boostd/internal/boost"
	"boostd/internal/model"
	"boostd/internal/storage"
)

// EpochCache recomputes the per-user, per-epoch balance memoization for
// the trailing windows. The cached rows are derived data and safe to
// overwrite.
type EpochCache struct {
	store       storage.Store
	sources     []balance.ChainSource
	concurrency int
	logger      *zap.Logger
}

func NewEpochCache(store storage.Store, sources []balance.ChainSource, concurrency int, logger *zap.Logger) *EpochCache {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EpochCache{store: store, sources: sources, concurrency: concurrency, logger: logger}
}

// Rebuild recomputes balances for the trailing boost.MaxBoostEpochs
// windows ending at reference for every staking user. Per-user failures
// are isolated and reported joined after all users finish.
func (c *EpochCache) Rebuild(ctx context.Context, reference time.Time, lastEpoch int) error {
	users, err := c.store.StakingUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	windows := boost.WindowsBackward(reference, lastEpoch, boost.MaxBoostEpochs)
	c.logger.Info("rebuilding epoch balances",
		zap.Int("users", len(users)),
		zap.Int("windows", len(windows)),
		zap.Time("reference", reference),
	)

	var (
		mu       sync.Mutex
		userErrs []error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for _, user := range users {
		user := user
		group.Go(func() error {
			if err := c.rebuildUser(groupCtx, user, windows); err != nil {
				mu.Lock()
				userErrs = append(userErrs, fmt.Errorf("user %s: %w", user, err))
				mu.Unlock()
				c.logger.Error("epoch balance rebuild failed", zap.String("user", user), zap.Error(err))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if len(userErrs) > 0 {
		return fmt.Errorf("%d of %d users failed: %w", len(userErrs), len(users), errors.Join(userErrs...))
	}
	return nil
}

func (c *EpochCache) rebuildUser(ctx context.Context, user string, windows []model.EpochWindow) error {
	var rows []model.UserEpochBalance

	for _, source := range c.sources {
		current, err := source.Current(ctx, user)
		if err != nil {
			return fmt.Errorf("current balance on %s: %w", source.Chain, err)
		}
		events, err := c.store.EventsByUser(ctx, user, source.Chain)
		if err != nil {
			return fmt.Errorf("events on %s: %w", source.Chain, err)
		}

		for _, window := range windows {
			startTs := uint64(window.From.Unix())
			sePSP2, err := balance.BackwardReplay(current, events, startTs)
			if err != nil {
				return fmt.Errorf("epoch %d on %s: %w", window.Number, source.Chain, err)
			}

			var eventIDs []string
			for _, event := range events {
				if ts := time.Unix(int64(event.BlockTimestamp), 0).UTC(); window.Contains(ts) {
					eventIDs = append(eventIDs, event.Identity())
				}
			}

			comp := SplitSePSP2(sePSP2)
			rows = append(rows, model.UserEpochBalance{
				User:                 user,
				Epoch:                window.Number,
				Chain:                source.Chain,
				SePSP2Balance:        comp.SePSP2,
				PSPBalance:           comp.PSP,
				WETHBalance:          comp.WETH,
				ContributingEventIDs: eventIDs,
			})
		}
	}

	return c.store.UpsertEpochBalances(ctx, rows)
}
