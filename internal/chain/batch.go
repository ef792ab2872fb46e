package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// RetryPolicy controls retry behavior for outbound RPC calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// DefaultRetryPolicy is the policy applied when none is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
	Jitter:      0.2,
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

// WithBackoff runs fn with exponential backoff and jitter until it succeeds
// or the policy's attempts are exhausted.
func WithBackoff(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	policy = policy.normalized()

	delay := policy.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= policy.MaxAttempts {
			return err
		}

		sleep := delay
		if policy.Jitter > 0 {
			spread := float64(delay) * policy.Jitter
			sleep += time.Duration(rand.Float64()*2*spread - spread)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}

// BatchCaller sends many independent read requests as one network round
// trip. Responses are correlated back to requests by the echoed JSON-RPC id
// (go-ethereum matches by id, never by array position). A fixed cooldown is
// applied after each round trip to respect upstream rate limits.
type BatchCaller struct {
	rpcClient *rpc.Client
	cooldown  time.Duration
	policy    RetryPolicy
	logger    *zap.Logger
}

func NewBatchCaller(rpcClient *rpc.Client, cooldown time.Duration, policy RetryPolicy, logger *zap.Logger) *BatchCaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCaller{
		rpcClient: rpcClient,
		cooldown:  cooldown,
		policy:    policy.normalized(),
		logger:    logger,
	}
}

func (b *BatchCaller) send(ctx context.Context, elems []rpc.BatchElem) error {
	err := WithBackoff(ctx, b.policy, func(ctx context.Context) error {
		callErr := b.rpcClient.BatchCallContext(ctx, elems)
		if callErr != nil {
			b.logger.Warn("batch call failed", zap.Int("requests", len(elems)), zap.Error(callErr))
		}
		return callErr
	})
	b.sleepCooldown(ctx)
	return err
}

// CallStrict sends the batch and fails it as a whole if any element carries
// an error. Used for batches that compute monetary values.
func (b *BatchCaller) CallStrict(ctx context.Context, elems []rpc.BatchElem) error {
	if err := b.send(ctx, elems); err != nil {
		return err
	}
	for i := range elems {
		if elems[i].Error != nil {
			return fmt.Errorf("batch element %d (%s): %w", i, elems[i].Method, elems[i].Error)
		}
	}
	return nil
}

// CallLenient sends the batch and treats missing or null results as "no
// data for this input": the element's Result is left untouched and its
// Error cleared. Any other per-element error still fails the batch. Used
// for discovery scans.
func (b *BatchCaller) CallLenient(ctx context.Context, elems []rpc.BatchElem) error {
	if err := b.send(ctx, elems); err != nil {
		return err
	}
	for i := range elems {
		if elems[i].Error == nil {
			continue
		}
		if errors.Is(elems[i].Error, rpc.ErrNoResult) {
			elems[i].Error = nil
			continue
		}
		return fmt.Errorf("batch element %d (%s): %w", i, elems[i].Method, elems[i].Error)
	}
	return nil
}

func (b *BatchCaller) sleepCooldown(ctx context.Context) {
	if b.cooldown <= 0 {
		return
	}
	timer := time.NewTimer(b.cooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
