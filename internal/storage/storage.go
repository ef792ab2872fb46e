package storage

import (
	"context"
	"errors"

	"boostd/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// LedgerStore persists balance-affecting staking events. Inserts are
// idempotent: an event identified by (chain, tx hash, log index, type)
// is never stored twice.
type LedgerStore interface {
	InsertLedgerEvents(ctx context.Context, events []model.LedgerEvent) (int, error)
	// EventsByUser returns all events for the user on one chain, most
	// recent first.
	EventsByUser(ctx context.Context, user, chain string) ([]model.LedgerEvent, error)
	// EventsByUserBetween returns the user's events across all chains with
	// blockTimestamp in [fromTs, toTs], oldest first.
	EventsByUserBetween(ctx context.Context, user string, fromTs, toTs uint64) ([]model.LedgerEvent, error)
	// FirstStakingEvent returns the user's earliest event, or ErrNotFound.
	FirstStakingEvent(ctx context.Context, user string) (model.LedgerEvent, error)
	// StakingUsers lists every user with at least one ledger event.
	StakingUsers(ctx context.Context) ([]string, error)
}

// CheckpointStore persists scan progress per (kind, chain). Checkpoints
// are monotonically non-decreasing.
type CheckpointStore interface {
	Checkpoint(ctx context.Context, kind model.ScanKind, chain string) (uint64, bool, error)
	SaveCheckpoint(ctx context.Context, cp model.ScanCheckpoint) error
}

// GapStore records chunks that failed during a scan so they can be
// retried instead of silently dropped.
type GapStore interface {
	RecordGap(ctx context.Context, gap model.ScanGap) error
	ListGaps(ctx context.Context, kind model.ScanKind, chain string) ([]model.ScanGap, error)
	ResolveGap(ctx context.Context, id int64) error
	BumpGap(ctx context.Context, id int64, lastError string) error
}

// BoostStore persists per-user eligibility state. Transitions are owned
// exclusively by the epoch eligibility engine.
type BoostStore interface {
	BoostState(ctx context.Context, user string) (model.UserBoostState, error)
	SaveBoostState(ctx context.Context, state model.UserBoostState) error
}

// EpochBalanceStore caches reconstructed per-epoch balances.
type EpochBalanceStore interface {
	UpsertEpochBalances(ctx context.Context, balances []model.UserEpochBalance) error
}

// ScoreStore persists gas-refund scores, keyed by transaction hash.
type ScoreStore interface {
	UpsertScore(ctx context.Context, score model.GasRefundScore) error
	// SaveScoreAndBoost commits the score and the boost-state update as
	// one atomic unit.
	SaveScoreAndBoost(ctx context.Context, score model.GasRefundScore, state model.UserBoostState) error
}

// PriceStore persists the quote-currency price series.
type PriceStore interface {
	InsertPricePoints(ctx context.Context, points []model.PricePoint) (int, error)
	// PricePoints returns the full series, oldest first.
	PricePoints(ctx context.Context) ([]model.PricePoint, error)
}

// SettlementStore persists discovered settlement transactions.
type SettlementStore interface {
	InsertSettlements(ctx context.Context, txs []model.SettlementTx) (int, error)
	// Settlements returns a chain's settlements, oldest first.
	Settlements(ctx context.Context, chain string) ([]model.SettlementTx, error)
}

// Store is the full persistence surface of the pipeline.
type Store interface {
	LedgerStore
	CheckpointStore
	GapStore
	BoostStore
	EpochBalanceStore
	ScoreStore
	PriceStore
	SettlementStore
}
