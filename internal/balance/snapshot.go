package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// BatchBalanceFunc fetches current balances for a set of holders in one
// batched call, in holder order.
type BatchBalanceFunc func(ctx context.Context, holders []string) ([]*big.Int, error)

// NewBatchSource builds a ChainSource over a fixed holder set. The
// balances are fetched in a single batched call on first lookup and
// served from that snapshot afterwards, so repeated per-user lookups
// during scoring cost one round trip per chain. A failed fetch is
// retried on the next lookup.
func NewBatchSource(chainName string, holders []string, fetch BatchBalanceFunc) ChainSource {
	s := &batchSnapshot{holders: holders, fetch: fetch}
	return ChainSource{Chain: chainName, Current: s.current}
}

type batchSnapshot struct {
	holders []string
	fetch   BatchBalanceFunc

	mu       sync.Mutex
	balances map[string]*big.Int
}

func (s *batchSnapshot) current(ctx context.Context, user string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances == nil {
		if err := s.load(ctx); err != nil {
			return nil, err
		}
	}

	value, ok := s.balances[strings.ToLower(user)]
	if !ok {
		return nil, fmt.Errorf("user %s is not in the balance snapshot", user)
	}
	return value, nil
}

func (s *batchSnapshot) load(ctx context.Context) error {
	values, err := s.fetch(ctx, s.holders)
	if err != nil {
		return fmt.Errorf("fetch balance snapshot: %w", err)
	}
	if len(values) != len(s.holders) {
		return fmt.Errorf("balance snapshot returned %d values for %d holders", len(values), len(s.holders))
	}

	balances := make(map[string]*big.Int, len(values))
	for i, holder := range s.holders {
		balances[strings.ToLower(holder)] = values[i]
	}
	s.balances = balances
	return nil
}
