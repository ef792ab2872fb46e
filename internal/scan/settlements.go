package scan

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"boostd/internal/chain"
	"boostd/internal/model"
	"boostd/internal/storage"
)

// SettlementConfig configures a settlement scan on one chain.
type SettlementConfig struct {
	Chain string
	// Contracts maps a monitored settlement contract address to its
	// label (e.g. "Augustus", "Delta"). A transaction counts as a
	// settlement when its to-address is one of these.
	Contracts map[common.Address]string
	// Selectors maps a 4-byte method selector (lowercase hex, no 0x) to
	// a method name. Unknown selectors leave the method empty; they
	// never block ingestion.
	Selectors map[string]string
	// ChunkSize is the block span fetched per batch round trip.
	ChunkSize uint64
	// Concurrency bounds parallel chunk fetches.
	Concurrency int
}

// SettlementScanner discovers settlement transactions by walking blocks
// with full transaction bodies and resolving the matches' receipts.
type SettlementScanner struct {
	cfg    SettlementConfig
	client *chain.Client
	store  storage.Store
	logger *zap.Logger
}

func NewSettlementScanner(cfg SettlementConfig, client *chain.Client, store storage.Store, logger *zap.Logger) (*SettlementScanner, error) {
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("at least one settlement contract is required")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1_000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementScanner{cfg: cfg, client: client, store: store, logger: logger}, nil
}

// Run scans [fromBlock, toBlock], resuming from the stored checkpoint.
func (s *SettlementScanner) Run(ctx context.Context, fromBlock, toBlock uint64) error {
	cfg := runConfig{
		Kind:        model.ScanSettlements,
		Chain:       s.cfg.Chain,
		FromBlock:   fromBlock,
		ToBlock:     toBlock,
		ChunkSize:   s.cfg.ChunkSize,
		Concurrency: s.cfg.Concurrency,
	}
	return runChunks(ctx, cfg, s.store, s.logger, s.ScanChunk)
}

// ScanChunk ingests one chunk. Safe to re-run: settlements are keyed by
// transaction hash on insert.
func (s *SettlementScanner) ScanChunk(ctx context.Context, blockRange BlockRange) error {
	blocks, err := s.client.BlocksWithTxs(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("fetch blocks %d-%d: %w", blockRange.From, blockRange.To, err)
	}

	type match struct {
		tx        chain.RPCTransaction
		contract  string
		method    string
		number    uint64
		timestamp uint64
	}
	var matches []match
	for i, block := range blocks {
		if block == nil {
			// Provider has no data for this block; discovery stays lenient.
			s.logger.Warn("no block data", zap.Uint64("block", blockRange.From+uint64(i)))
			continue
		}
		for _, tx := range block.Transactions {
			if tx.To == nil {
				continue
			}
			label, ok := s.cfg.Contracts[*tx.To]
			if !ok {
				continue
			}
			matches = append(matches, match{
				tx:        tx,
				contract:  label,
				method:    s.methodName(tx.Input),
				number:    uint64(block.Number),
				timestamp: uint64(block.Timestamp),
			})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	hashes := make([]common.Hash, len(matches))
	for i, m := range matches {
		hashes[i] = m.tx.Hash
	}
	receipts, err := s.client.TransactionReceipts(ctx, hashes)
	if err != nil {
		return fmt.Errorf("fetch receipts %d-%d: %w", blockRange.From, blockRange.To, err)
	}

	settlements := make([]model.SettlementTx, 0, len(matches))
	for i, m := range matches {
		receipt := receipts[i]
		gasPrice := receipt.EffectiveGasPrice
		if gasPrice == nil {
			gasPrice = m.tx.GasPrice.ToInt()
		}
		settlements = append(settlements, model.SettlementTx{
			Chain:          s.cfg.Chain,
			TxHash:         strings.ToLower(m.tx.Hash.Hex()),
			User:           strings.ToLower(m.tx.From.Hex()),
			Contract:       m.contract,
			Method:         m.method,
			GasUsed:        receipt.GasUsed,
			GasPriceWei:    gasPrice,
			BlockNumber:    m.number,
			BlockTimestamp: m.timestamp,
		})
	}

	inserted, err := s.store.InsertSettlements(ctx, settlements)
	if err != nil {
		return fmt.Errorf("store settlements: %w", err)
	}
	s.logger.Debug("chunk ingested",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Int("matched", len(settlements)),
		zap.Int("inserted", inserted),
	)
	return nil
}

// methodName resolves the transaction's method selector against the
// configured allow-list. An unrecognized or truncated input yields an
// empty name.
func (s *SettlementScanner) methodName(input []byte) string {
	if len(input) < 4 {
		return ""
	}
	return s.cfg.Selectors[hex.EncodeToString(input[:4])]
}
