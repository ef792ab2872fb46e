package scan

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"boostd/internal/model"
	"boostd/internal/storage"
)

var (
	// Transfer(address indexed from, address indexed to, uint256 value)
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// Withdraw(int256 indexed id, address indexed owner, uint256 amount)
	withdrawTopic = crypto.Keccak256Hash([]byte("Withdraw(int256,address,uint256)"))

	zeroAddress = common.Address{}
)

// StakingConfig configures a staking-event scan on one chain.
type StakingConfig struct {
	Chain string
	// Token is the staking-receipt token whose Transfer/Withdraw events
	// form the balance ledger.
	Token common.Address
	// Wallets restricts the scan to tracked holders; logs touching other
	// addresses are never requested.
	Wallets []common.Address
	// ChunkSize is the block span per eth_getLogs call.
	ChunkSize uint64
	// Concurrency bounds parallel chunk fetches.
	Concurrency int
}

// LogSource is the slice of the chain client the staking scanner needs.
type LogSource interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// StakingScanner ingests balance-affecting events of the staking token
// for the tracked wallets.
type StakingScanner struct {
	cfg          StakingConfig
	client       LogSource
	store        storage.Store
	logger       *zap.Logger
	walletTopics []common.Hash
	tracked      map[common.Address]struct{}
}

func NewStakingScanner(cfg StakingConfig, client LogSource, store storage.Store, logger *zap.Logger) (*StakingScanner, error) {
	if len(cfg.Wallets) == 0 {
		return nil, fmt.Errorf("at least one tracked wallet is required")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 10_000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	walletTopics := make([]common.Hash, len(cfg.Wallets))
	tracked := make(map[common.Address]struct{}, len(cfg.Wallets))
	for i, wallet := range cfg.Wallets {
		walletTopics[i] = common.BytesToHash(wallet.Bytes())
		tracked[wallet] = struct{}{}
	}

	return &StakingScanner{
		cfg:          cfg,
		client:       client,
		store:        store,
		logger:       logger,
		walletTopics: walletTopics,
		tracked:      tracked,
	}, nil
}

// Run scans [fromBlock, toBlock], resuming from the stored checkpoint.
func (s *StakingScanner) Run(ctx context.Context, fromBlock, toBlock uint64) error {
	cfg := runConfig{
		Kind:        model.ScanStaking,
		Chain:       s.cfg.Chain,
		FromBlock:   fromBlock,
		ToBlock:     toBlock,
		ChunkSize:   s.cfg.ChunkSize,
		Concurrency: s.cfg.Concurrency,
	}
	return runChunks(ctx, cfg, s.store, s.logger, s.ScanChunk)
}

// ScanChunk ingests one chunk. Safe to re-run: events are keyed by
// (chain, tx hash, log index, type) on insert.
func (s *StakingScanner) ScanChunk(ctx context.Context, blockRange BlockRange) error {
	queries := []struct {
		leg    ledgerLeg
		topics [][]common.Hash
	}{
		{legTransferIn, [][]common.Hash{{transferTopic}, nil, s.walletTopics}},
		{legTransferOut, [][]common.Hash{{transferTopic}, s.walletTopics, nil}},
		{legWithdraw, [][]common.Hash{{withdrawTopic}, nil, s.walletTopics}},
	}

	var events []model.LedgerEvent
	for _, q := range queries {
		logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(blockRange.From),
			ToBlock:   new(big.Int).SetUint64(blockRange.To),
			Addresses: []common.Address{s.cfg.Token},
			Topics:    q.topics,
		})
		if err != nil {
			return fmt.Errorf("%s logs %d-%d: %w", q.leg, blockRange.From, blockRange.To, err)
		}

		for _, log := range logs {
			event, ok, err := s.normalize(ctx, q.leg, log)
			if err != nil {
				return err
			}
			if ok {
				events = append(events, event)
			}
		}
	}
	if len(events) == 0 {
		return nil
	}

	inserted, err := s.store.InsertLedgerEvents(ctx, events)
	if err != nil {
		return fmt.Errorf("store ledger events: %w", err)
	}
	s.logger.Debug("chunk ingested",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Int("events", len(events)),
		zap.Int("inserted", inserted),
	)
	return nil
}

// ledgerLeg names which side of a log a query targets. A transfer
// between two tracked wallets is one log but two ledger rows, one per
// side, so normalization must know which leg it is resolving.
type ledgerLeg string

const (
	legTransferIn  ledgerLeg = "transfer_in"
	legTransferOut ledgerLeg = "transfer_out"
	legWithdraw    ledgerLeg = "withdraw"
)

// normalize turns a raw token log into a ledger event. The timestamp is
// taken from the block header, never from fetch wall-clock time. A
// Transfer minted from the zero address is a Deposit.
func (s *StakingScanner) normalize(ctx context.Context, leg ledgerLeg, log types.Log) (model.LedgerEvent, bool, error) {
	if len(log.Topics) < 3 {
		return model.LedgerEvent{}, false, nil
	}

	var (
		eventType model.EventType
		user      common.Address
	)
	switch leg {
	case legTransferIn:
		user = common.BytesToAddress(log.Topics[2].Bytes())
		if common.BytesToAddress(log.Topics[1].Bytes()) == zeroAddress {
			eventType = model.EventDeposit
		} else {
			eventType = model.EventTransferIn
		}
	case legTransferOut:
		user = common.BytesToAddress(log.Topics[1].Bytes())
		eventType = model.EventTransferOut
	case legWithdraw:
		user = common.BytesToAddress(log.Topics[2].Bytes())
		eventType = model.EventWithdraw
	default:
		return model.LedgerEvent{}, false, nil
	}
	if _, ok := s.tracked[user]; !ok {
		return model.LedgerEvent{}, false, nil
	}

	ts, err := s.client.BlockTimestamp(ctx, log.BlockNumber)
	if err != nil {
		return model.LedgerEvent{}, false, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
	}

	return model.LedgerEvent{
		User:            strings.ToLower(user.Hex()),
		Type:            eventType,
		Amount:          new(big.Int).SetBytes(log.Data),
		Chain:           s.cfg.Chain,
		ContractAddress: strings.ToLower(log.Address.Hex()),
		BlockNumber:     log.BlockNumber,
		BlockTimestamp:  ts,
		TxHash:          strings.ToLower(log.TxHash.Hex()),
		LogIndex:        uint64(log.Index),
	}, true, nil
}
