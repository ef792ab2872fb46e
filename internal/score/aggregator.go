package score

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boostd/internal/balance"
	"boostd/internal/boost"
	"boostd/internal/model"
	"boostd/internal/price"
	"boostd/internal/storage"
)

// Config controls the scoring run.
type Config struct {
	// Chains whose staking balances contribute to the score.
	Chains []string
	// Concurrency bounds the number of users scored in parallel.
	Concurrency int
}

// Aggregator computes and persists a gas-refund score for every
// settlement transaction of a chain.
type Aggregator struct {
	cfg      Config
	store    storage.Store
	balances *balance.Reconstructor
	engine   *boost.Engine
	prices   *price.Series
	logger   *zap.Logger
}

func NewAggregator(cfg Config, store storage.Store, balances *balance.Reconstructor, engine *boost.Engine, prices *price.Series, logger *zap.Logger) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:      cfg,
		store:    store,
		balances: balances,
		engine:   engine,
		prices:   prices,
		logger:   logger,
	}
}

// Run scores all settlements on chainName. Users are processed in
// parallel; a failure for one user is recorded and does not stop the
// others. The collected per-user errors are returned joined.
func (a *Aggregator) Run(ctx context.Context, chainName string) error {
	settlements, err := a.store.Settlements(ctx, chainName)
	if err != nil {
		return fmt.Errorf("load settlements: %w", err)
	}
	if len(settlements) == 0 {
		a.logger.Info("no settlements to score", zap.String("chain", chainName))
		return nil
	}

	byUser := make(map[string][]model.SettlementTx)
	for _, tx := range settlements {
		byUser[tx.User] = append(byUser[tx.User], tx)
	}

	a.logger.Info("scoring settlements",
		zap.String("chain", chainName),
		zap.Int("transactions", len(settlements)),
		zap.Int("users", len(byUser)),
	)

	var (
		mu       sync.Mutex
		userErrs []error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.cfg.Concurrency)
	for user, txs := range byUser {
		user, txs := user, txs
		group.Go(func() error {
			// Transactions for one user advance shared boost state and
			// must run in order; users are independent of each other.
			if err := a.scoreUser(groupCtx, user, txs); err != nil {
				mu.Lock()
				userErrs = append(userErrs, fmt.Errorf("user %s: %w", user, err))
				mu.Unlock()
				a.logger.Error("user scoring failed", zap.String("user", user), zap.Error(err))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if len(userErrs) > 0 {
		return fmt.Errorf("%d of %d users failed: %w", len(userErrs), len(byUser), errors.Join(userErrs...))
	}
	return nil
}

func (a *Aggregator) scoreUser(ctx context.Context, user string, txs []model.SettlementTx) error {
	for _, tx := range txs {
		if err := a.scoreTx(ctx, user, tx); err != nil {
			return fmt.Errorf("tx %s: %w", tx.TxHash, err)
		}
	}
	return nil
}

func (a *Aggregator) scoreTx(ctx context.Context, user string, tx model.SettlementTx) error {
	totalPSP := new(big.Int)
	totalWETH := new(big.Int)
	for _, chainName := range a.cfg.Chains {
		sePSP2, err := a.balances.ChainAt(ctx, user, chainName, tx.BlockTimestamp)
		if err != nil {
			return err
		}
		comp := SplitSePSP2(sePSP2)
		totalPSP.Add(totalPSP, comp.PSP)
		totalWETH.Add(totalWETH, comp.WETH)
	}

	res, err := a.engine.Evaluate(ctx, user, tx.BlockTimestamp)
	if err != nil {
		return err
	}

	ethPrice, err := a.prices.At(tx.BlockTimestamp)
	if err != nil {
		return err
	}

	gasWei := GasCostWei(tx.GasUsed, tx.GasPriceWei)
	record := model.GasRefundScore{
		TxHash:         tx.TxHash,
		User:           user,
		GasUsedWei:     gasWei,
		GasUsedUSD:     USDValue(gasWei, ethPrice),
		TotalStakedPSP: totalPSP,
		Score:          CompositeScore(totalPSP, totalWETH),
		Boost:          res.Boost,
	}

	// The score and its boost-state update land atomically; a score
	// without the matching state advance (or vice versa) must not
	// survive a crash.
	if res.State != nil {
		if err := a.store.SaveScoreAndBoost(ctx, record, *res.State); err != nil {
			return fmt.Errorf("persist score and boost: %w", err)
		}
	} else if err := a.store.UpsertScore(ctx, record); err != nil {
		return fmt.Errorf("persist score: %w", err)
	}

	a.logger.Debug("transaction scored",
		zap.String("tx", tx.TxHash),
		zap.String("user", user),
		zap.Float64("boost", res.Boost),
		zap.String("score", record.Score.String()),
	)
	return nil
}
