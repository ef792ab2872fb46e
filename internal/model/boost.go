package model

import (
	"math/big"
	"time"
)

// EpochWindow is a fixed 28-day evaluation window. Windows are contiguous
// and non-overlapping; To is exclusive.
type EpochWindow struct {
	Number int       `json:"number"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// Contains reports whether ts falls inside the window.
func (w EpochWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.From) && ts.Before(w.To)
}

// UserBoostState is the incremental eligibility state, one row per user.
// Owned exclusively by the epoch eligibility engine.
type UserBoostState struct {
	User                  string     `json:"user"`
	ParaBoost             float64    `json:"para_boost"`
	EpochsGeneratingBoost int        `json:"epochs_generating_boost"`
	LastEpochProcessed    int        `json:"last_epoch_processed"`
	LastCalculated        *time.Time `json:"last_calculated"`
}

// UserEpochBalance caches reconstructed balances for one user/epoch/chain.
// Purely derived; safe to recompute and overwrite.
type UserEpochBalance struct {
	User                 string   `json:"user"`
	Epoch                int      `json:"epoch"`
	Chain                string   `json:"chain"`
	SePSP2Balance        *big.Int `json:"sepsp2_balance"`
	PSPBalance           *big.Int `json:"psp_balance"`
	WETHBalance          *big.Int `json:"weth_balance"`
	ContributingEventIDs []string `json:"contributing_event_ids"`
}
