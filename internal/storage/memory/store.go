// Package memory provides an in-memory Store used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"boostd/internal/model"
	"boostd/internal/storage"
)

// Store keeps everything in process memory. All methods are safe for
// concurrent use.
type Store struct {
	mu sync.RWMutex

	events      []model.LedgerEvent
	eventIdx    map[string]struct{}
	checkpoints map[string]uint64
	gaps        map[int64]model.ScanGap
	nextGapID   int64
	boost       map[string]model.UserBoostState
	epochBals   map[string]model.UserEpochBalance
	scores      map[string]model.GasRefundScore
	prices      []model.PricePoint
	priceIdx    map[uint64]struct{}
	settlements map[string]model.SettlementTx
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		eventIdx:    make(map[string]struct{}),
		checkpoints: make(map[string]uint64),
		gaps:        make(map[int64]model.ScanGap),
		nextGapID:   1,
		boost:       make(map[string]model.UserBoostState),
		epochBals:   make(map[string]model.UserEpochBalance),
		scores:      make(map[string]model.GasRefundScore),
		priceIdx:    make(map[uint64]struct{}),
		settlements: make(map[string]model.SettlementTx),
	}
}

func (s *Store) InsertLedgerEvents(ctx context.Context, events []model.LedgerEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, event := range events {
		id := event.Identity()
		if _, ok := s.eventIdx[id]; ok {
			continue
		}
		s.eventIdx[id] = struct{}{}
		s.events = append(s.events, event)
		inserted++
	}
	return inserted, nil
}

func (s *Store) EventsByUser(ctx context.Context, user, chain string) ([]model.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LedgerEvent
	for _, event := range s.events {
		if event.User == user && event.Chain == chain {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})
	return out, nil
}

func (s *Store) EventsByUserBetween(ctx context.Context, user string, fromTs, toTs uint64) ([]model.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LedgerEvent
	for _, event := range s.events {
		if event.User != user {
			continue
		}
		if event.BlockTimestamp < fromTs || event.BlockTimestamp > toTs {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockTimestamp != out[j].BlockTimestamp {
			return out[i].BlockTimestamp < out[j].BlockTimestamp
		}
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

func (s *Store) FirstStakingEvent(ctx context.Context, user string) (model.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first model.LedgerEvent
	found := false
	for _, event := range s.events {
		if event.User != user {
			continue
		}
		if !found || event.BlockTimestamp < first.BlockTimestamp {
			first = event
			found = true
		}
	}
	if !found {
		return model.LedgerEvent{}, storage.ErrNotFound
	}
	return first, nil
}

func (s *Store) StakingUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var users []string
	for _, event := range s.events {
		if _, ok := seen[event.User]; ok {
			continue
		}
		seen[event.User] = struct{}{}
		users = append(users, event.User)
	}
	sort.Strings(users)
	return users, nil
}

func checkpointKey(kind model.ScanKind, chain string) string {
	return string(kind) + ":" + chain
}

func (s *Store) Checkpoint(ctx context.Context, kind model.ScanKind, chain string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.checkpoints[checkpointKey(kind, chain)]
	return block, ok, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp model.ScanCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := checkpointKey(cp.Kind, cp.Chain)
	if existing, ok := s.checkpoints[key]; ok && existing > cp.LastProcessedBlock {
		return nil
	}
	s.checkpoints[key] = cp.LastProcessedBlock
	return nil
}

func (s *Store) RecordGap(ctx context.Context, gap model.ScanGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gap.ID = s.nextGapID
	s.nextGapID++
	s.gaps[gap.ID] = gap
	return nil
}

func (s *Store) ListGaps(ctx context.Context, kind model.ScanKind, chain string) ([]model.ScanGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ScanGap
	for _, gap := range s.gaps {
		if gap.Kind == kind && gap.Chain == chain {
			out = append(out, gap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FromBlock < out[j].FromBlock })
	return out, nil
}

func (s *Store) ResolveGap(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gaps[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.gaps, id)
	return nil
}

func (s *Store) BumpGap(ctx context.Context, id int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gap, ok := s.gaps[id]
	if !ok {
		return storage.ErrNotFound
	}
	gap.Attempts++
	gap.LastError = lastError
	s.gaps[id] = gap
	return nil
}

func (s *Store) BoostState(ctx context.Context, user string) (model.UserBoostState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.boost[user]
	if !ok {
		return model.UserBoostState{}, storage.ErrNotFound
	}
	return state, nil
}

func (s *Store) SaveBoostState(ctx context.Context, state model.UserBoostState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.boost[state.User] = state
	return nil
}

func epochBalanceKey(b model.UserEpochBalance) string {
	return fmt.Sprintf("%s:%s:%d", b.User, b.Chain, b.Epoch)
}

func (s *Store) UpsertEpochBalances(ctx context.Context, balances []model.UserEpochBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, balance := range balances {
		s.epochBals[epochBalanceKey(balance)] = balance
	}
	return nil
}

func (s *Store) UpsertScore(ctx context.Context, score model.GasRefundScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scores[score.TxHash] = score
	return nil
}

func (s *Store) SaveScoreAndBoost(ctx context.Context, score model.GasRefundScore, state model.UserBoostState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scores[score.TxHash] = score
	s.boost[state.User] = state
	return nil
}

// Score returns a stored score by transaction hash. Test helper.
func (s *Store) Score(txHash string) (model.GasRefundScore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.scores[txHash]
	return score, ok
}

func (s *Store) InsertPricePoints(ctx context.Context, points []model.PricePoint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, point := range points {
		if _, ok := s.priceIdx[point.Timestamp]; ok {
			continue
		}
		s.priceIdx[point.Timestamp] = struct{}{}
		s.prices = append(s.prices, point)
		inserted++
	}
	return inserted, nil
}

func (s *Store) PricePoints(ctx context.Context) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PricePoint, len(s.prices))
	copy(out, s.prices)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (s *Store) InsertSettlements(ctx context.Context, txs []model.SettlementTx) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, tx := range txs {
		key := tx.Chain + ":" + tx.TxHash
		if _, ok := s.settlements[key]; ok {
			continue
		}
		s.settlements[key] = tx
		inserted++
	}
	return inserted, nil
}

func (s *Store) Settlements(ctx context.Context, chain string) ([]model.SettlementTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.SettlementTx
	for _, tx := range s.settlements {
		if tx.Chain == chain {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockTimestamp != out[j].BlockTimestamp {
			return out[i].BlockTimestamp < out[j].BlockTimestamp
		}
		return out[i].TxHash < out[j].TxHash
	})
	return out, nil
}

// EventCount reports the number of stored ledger events. Test helper.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
