package scan

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"boostd/internal/model"
	"boostd/internal/storage"
)

// ImportConfig configures a settlement import from an exported CSV.
type ImportConfig struct {
	Chain string
	// ChainID filters rows to one network, matched against the csv
	// chainId column (e.g. "1" for mainnet).
	ChainID string
	// Contracts maps accepted settlement contract addresses (lowercase
	// hex) to their labels. Rows for other contracts are skipped.
	Contracts map[string]string
}

// ImportSettlements reads an exported transaction CSV and stores the
// validated settlement rows. Only rows matching the configured chain id
// and contract set with status "validated" are kept; everything else is
// skipped, not failed. Expected header:
//
//	chainId,hash,contract,user,method,gasUsed,gasPrice,blockNumber,timestamp,status
func ImportSettlements(ctx context.Context, cfg ImportConfig, r io.Reader, store storage.SettlementStore, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"chainId", "hash", "contract", "user", "method", "gasUsed", "gasPrice", "blockNumber", "timestamp", "status"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("csv is missing column %q", required)
		}
	}

	var (
		rows    []model.SettlementTx
		line    = 1
		skipped int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return 0, fmt.Errorf("read csv line %d: %w", line, err)
		}

		field := func(name string) string { return strings.TrimSpace(record[col[name]]) }

		contract := strings.ToLower(field("contract"))
		label, tracked := cfg.Contracts[contract]
		if field("chainId") != cfg.ChainID || !tracked || field("status") != "validated" {
			skipped++
			continue
		}

		gasUsed, err := strconv.ParseUint(stripSeparators(field("gasUsed")), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("csv line %d: gas used: %w", line, err)
		}
		gasPrice, ok := new(big.Int).SetString(stripSeparators(field("gasPrice")), 10)
		if !ok {
			return 0, fmt.Errorf("csv line %d: invalid gas price %q", line, field("gasPrice"))
		}
		blockNumber, err := strconv.ParseUint(stripSeparators(field("blockNumber")), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("csv line %d: block number: %w", line, err)
		}
		ts, err := strconv.ParseUint(stripSeparators(field("timestamp")), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("csv line %d: timestamp: %w", line, err)
		}

		rows = append(rows, model.SettlementTx{
			Chain:          cfg.Chain,
			TxHash:         strings.ToLower(field("hash")),
			User:           strings.ToLower(field("user")),
			Contract:       label,
			Method:         field("method"),
			GasUsed:        gasUsed,
			GasPriceWei:    gasPrice,
			BlockNumber:    blockNumber,
			BlockTimestamp: ts,
		})
	}

	inserted, err := store.InsertSettlements(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("store settlements: %w", err)
	}
	logger.Info("settlements imported",
		zap.String("chain", cfg.Chain),
		zap.Int("rows", len(rows)),
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
	)
	return inserted, nil
}

// stripSeparators removes the thousands separators some spreadsheet
// exports put into numeric columns ("21,716,022").
func stripSeparators(value string) string {
	return strings.ReplaceAll(value, ",", "")
}
