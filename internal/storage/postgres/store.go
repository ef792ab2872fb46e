// Package postgres implements the persistence surface on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"boostd/internal/model"
	"boostd/internal/storage"
)

// Store provides Postgres persistence for the pipeline.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ledger_events (
			chain TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			log_index BIGINT NOT NULL,
			"user" TEXT NOT NULL,
			type TEXT NOT NULL,
			amount NUMERIC(78) NOT NULL,
			contract_address TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			block_timestamp BIGINT NOT NULL,
			PRIMARY KEY (chain, tx_hash, log_index, type)
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_events_user_idx ON ledger_events ("user", block_timestamp)`,
		`CREATE TABLE IF NOT EXISTS scan_checkpoints (
			kind TEXT NOT NULL,
			chain TEXT NOT NULL,
			last_processed_block BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (kind, chain)
		)`,
		`CREATE TABLE IF NOT EXISTS scan_gaps (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			chain TEXT NOT NULL,
			from_block BIGINT NOT NULL,
			to_block BIGINT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS user_boost_states (
			"user" TEXT PRIMARY KEY,
			para_boost DOUBLE PRECISION NOT NULL,
			epochs_generating_boost INT NOT NULL,
			last_epoch_processed INT NOT NULL,
			last_calculated TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS user_epoch_balances (
			"user" TEXT NOT NULL,
			epoch INT NOT NULL,
			chain TEXT NOT NULL,
			sepsp2_balance NUMERIC(78) NOT NULL,
			psp_balance NUMERIC(78) NOT NULL,
			weth_balance NUMERIC(78) NOT NULL,
			event_ids TEXT NOT NULL DEFAULT '',
			PRIMARY KEY ("user", epoch, chain)
		)`,
		`CREATE TABLE IF NOT EXISTS gas_refund_scores (
			tx_hash TEXT PRIMARY KEY,
			"user" TEXT NOT NULL,
			gas_used_wei NUMERIC(78) NOT NULL,
			gas_used_usd NUMERIC(78) NOT NULL,
			total_staked_psp NUMERIC(78) NOT NULL,
			score NUMERIC(78) NOT NULL,
			boost DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_points (
			ts BIGINT PRIMARY KEY,
			value NUMERIC(78) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settlements (
			chain TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			"user" TEXT NOT NULL,
			contract TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			gas_used BIGINT NOT NULL,
			gas_price_wei NUMERIC(78) NOT NULL,
			block_number BIGINT NOT NULL,
			block_timestamp BIGINT NOT NULL,
			PRIMARY KEY (chain, tx_hash)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func (s *Store) InsertLedgerEvents(ctx context.Context, events []model.LedgerEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			INSERT INTO ledger_events (
				chain, tx_hash, log_index, "user", type, amount,
				contract_address, block_number, block_timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chain, tx_hash, log_index, type) DO NOTHING
		`,
			event.Chain,
			event.TxHash,
			int64(event.LogIndex),
			event.User,
			string(event.Type),
			numeric(event.Amount),
			event.ContractAddress,
			int64(event.BlockNumber),
			int64(event.BlockTimestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range events {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const ledgerEventColumns = `chain, tx_hash, log_index, "user", type, amount::text, contract_address, block_number, block_timestamp`

func scanLedgerEvents(rows pgx.Rows) ([]model.LedgerEvent, error) {
	defer rows.Close()

	var out []model.LedgerEvent
	for rows.Next() {
		var (
			event     model.LedgerEvent
			logIndex  int64
			eventType string
			amount    string
			blockNum  int64
			blockTs   int64
		)
		if err := rows.Scan(
			&event.Chain, &event.TxHash, &logIndex, &event.User,
			&eventType, &amount, &event.ContractAddress, &blockNum, &blockTs,
		); err != nil {
			return nil, err
		}
		parsed, err := parseNumeric(amount)
		if err != nil {
			return nil, err
		}
		event.LogIndex = uint64(logIndex)
		event.Type = model.EventType(eventType)
		event.Amount = parsed
		event.BlockNumber = uint64(blockNum)
		event.BlockTimestamp = uint64(blockTs)
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *Store) EventsByUser(ctx context.Context, user, chain string) ([]model.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ledgerEventColumns+`
		FROM ledger_events
		WHERE "user" = $1 AND chain = $2
		ORDER BY block_number DESC, log_index DESC
	`, user, chain)
	if err != nil {
		return nil, err
	}
	return scanLedgerEvents(rows)
}

func (s *Store) EventsByUserBetween(ctx context.Context, user string, fromTs, toTs uint64) ([]model.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ledgerEventColumns+`
		FROM ledger_events
		WHERE "user" = $1 AND block_timestamp BETWEEN $2 AND $3
		ORDER BY block_timestamp ASC, block_number ASC, log_index ASC
	`, user, int64(fromTs), int64(toTs))
	if err != nil {
		return nil, err
	}
	return scanLedgerEvents(rows)
}

func (s *Store) FirstStakingEvent(ctx context.Context, user string) (model.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ledgerEventColumns+`
		FROM ledger_events
		WHERE "user" = $1
		ORDER BY block_timestamp ASC, block_number ASC, log_index ASC
		LIMIT 1
	`, user)
	if err != nil {
		return model.LedgerEvent{}, err
	}
	events, err := scanLedgerEvents(rows)
	if err != nil {
		return model.LedgerEvent{}, err
	}
	if len(events) == 0 {
		return model.LedgerEvent{}, storage.ErrNotFound
	}
	return events[0], nil
}

func (s *Store) StakingUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT "user" FROM ledger_events ORDER BY "user"`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) Checkpoint(ctx context.Context, kind model.ScanKind, chain string) (uint64, bool, error) {
	var block int64
	row := s.pool.QueryRow(ctx, `
		SELECT last_processed_block FROM scan_checkpoints WHERE kind = $1 AND chain = $2
	`, string(kind), chain)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp model.ScanCheckpoint) error {
	// GREATEST keeps the checkpoint monotonically non-decreasing.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_checkpoints (kind, chain, last_processed_block, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, chain) DO UPDATE
		SET last_processed_block = GREATEST(scan_checkpoints.last_processed_block, EXCLUDED.last_processed_block),
		    updated_at = now()
	`, string(cp.Kind), cp.Chain, int64(cp.LastProcessedBlock))
	return err
}

func (s *Store) RecordGap(ctx context.Context, gap model.ScanGap) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_gaps (kind, chain, from_block, to_block, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(gap.Kind), gap.Chain, int64(gap.FromBlock), int64(gap.ToBlock), gap.Attempts, gap.LastError)
	return err
}

func (s *Store) ListGaps(ctx context.Context, kind model.ScanKind, chain string) ([]model.ScanGap, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, chain, from_block, to_block, attempts, last_error
		FROM scan_gaps
		WHERE kind = $1 AND chain = $2
		ORDER BY from_block ASC
	`, string(kind), chain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScanGap
	for rows.Next() {
		var (
			gap        model.ScanGap
			kindVal    string
			fromBlock  int64
			toBlock    int64
		)
		if err := rows.Scan(&gap.ID, &kindVal, &gap.Chain, &fromBlock, &toBlock, &gap.Attempts, &gap.LastError); err != nil {
			return nil, err
		}
		gap.Kind = model.ScanKind(kindVal)
		gap.FromBlock = uint64(fromBlock)
		gap.ToBlock = uint64(toBlock)
		out = append(out, gap)
	}
	return out, rows.Err()
}

func (s *Store) ResolveGap(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scan_gaps WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) BumpGap(ctx context.Context, id int64, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_gaps SET attempts = attempts + 1, last_error = $2 WHERE id = $1
	`, id, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) BoostState(ctx context.Context, user string) (model.UserBoostState, error) {
	state := model.UserBoostState{User: user}
	var lastCalculated *time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT para_boost, epochs_generating_boost, last_epoch_processed, last_calculated
		FROM user_boost_states WHERE "user" = $1
	`, user)
	if err := row.Scan(&state.ParaBoost, &state.EpochsGeneratingBoost, &state.LastEpochProcessed, &lastCalculated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UserBoostState{}, storage.ErrNotFound
		}
		return model.UserBoostState{}, err
	}
	state.LastCalculated = lastCalculated
	return state, nil
}

const saveBoostStateSQL = `
	INSERT INTO user_boost_states ("user", para_boost, epochs_generating_boost, last_epoch_processed, last_calculated)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT ("user") DO UPDATE SET
		para_boost = EXCLUDED.para_boost,
		epochs_generating_boost = EXCLUDED.epochs_generating_boost,
		last_epoch_processed = EXCLUDED.last_epoch_processed,
		last_calculated = EXCLUDED.last_calculated
`

func (s *Store) SaveBoostState(ctx context.Context, state model.UserBoostState) error {
	_, err := s.pool.Exec(ctx, saveBoostStateSQL,
		state.User, state.ParaBoost, state.EpochsGeneratingBoost, state.LastEpochProcessed, state.LastCalculated)
	return err
}

func (s *Store) UpsertEpochBalances(ctx context.Context, balances []model.UserEpochBalance) error {
	if len(balances) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range balances {
		batch.Queue(`
			INSERT INTO user_epoch_balances ("user", epoch, chain, sepsp2_balance, psp_balance, weth_balance, event_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT ("user", epoch, chain) DO UPDATE SET
				sepsp2_balance = EXCLUDED.sepsp2_balance,
				psp_balance = EXCLUDED.psp_balance,
				weth_balance = EXCLUDED.weth_balance,
				event_ids = EXCLUDED.event_ids
		`,
			b.User, b.Epoch, b.Chain,
			numeric(b.SePSP2Balance), numeric(b.PSPBalance), numeric(b.WETHBalance),
			strings.Join(b.ContributingEventIDs, ","),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range balances {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

const upsertScoreSQL = `
	INSERT INTO gas_refund_scores (tx_hash, "user", gas_used_wei, gas_used_usd, total_staked_psp, score, boost)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (tx_hash) DO UPDATE SET
		"user" = EXCLUDED."user",
		gas_used_wei = EXCLUDED.gas_used_wei,
		gas_used_usd = EXCLUDED.gas_used_usd,
		total_staked_psp = EXCLUDED.total_staked_psp,
		score = EXCLUDED.score,
		boost = EXCLUDED.boost
`

func (s *Store) UpsertScore(ctx context.Context, score model.GasRefundScore) error {
	_, err := s.pool.Exec(ctx, upsertScoreSQL,
		score.TxHash, score.User,
		numeric(score.GasUsedWei), numeric(score.GasUsedUSD),
		numeric(score.TotalStakedPSP), numeric(score.Score), score.Boost)
	return err
}

// SaveScoreAndBoost writes the score and the boost state in one
// transaction: both commit or neither does.
func (s *Store) SaveScoreAndBoost(ctx context.Context, score model.GasRefundScore, state model.UserBoostState) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertScoreSQL,
			score.TxHash, score.User,
			numeric(score.GasUsedWei), numeric(score.GasUsedUSD),
			numeric(score.TotalStakedPSP), numeric(score.Score), score.Boost); err != nil {
			return fmt.Errorf("upsert score: %w", err)
		}
		if _, err := tx.Exec(ctx, saveBoostStateSQL,
			state.User, state.ParaBoost, state.EpochsGeneratingBoost, state.LastEpochProcessed, state.LastCalculated); err != nil {
			return fmt.Errorf("save boost state: %w", err)
		}
		return nil
	})
}

func (s *Store) InsertPricePoints(ctx context.Context, points []model.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, point := range points {
		batch.Queue(`
			INSERT INTO price_points (ts, value) VALUES ($1, $2)
			ON CONFLICT (ts) DO NOTHING
		`, int64(point.Timestamp), numeric(point.Value))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range points {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *Store) PricePoints(ctx context.Context) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `SELECT ts, value::text FROM price_points ORDER BY ts ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var (
			ts    int64
			value string
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, err
		}
		parsed, err := parseNumeric(value)
		if err != nil {
			return nil, err
		}
		out = append(out, model.PricePoint{Timestamp: uint64(ts), Value: parsed})
	}
	return out, rows.Err()
}

func (s *Store) InsertSettlements(ctx context.Context, txs []model.SettlementTx) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(`
			INSERT INTO settlements (chain, tx_hash, "user", contract, method, gas_used, gas_price_wei, block_number, block_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chain, tx_hash) DO NOTHING
		`,
			tx.Chain, tx.TxHash, tx.User, tx.Contract, tx.Method,
			int64(tx.GasUsed), numeric(tx.GasPriceWei),
			int64(tx.BlockNumber), int64(tx.BlockTimestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range txs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *Store) Settlements(ctx context.Context, chain string) ([]model.SettlementTx, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain, tx_hash, "user", contract, method, gas_used, gas_price_wei::text, block_number, block_timestamp
		FROM settlements
		WHERE chain = $1
		ORDER BY block_timestamp ASC, tx_hash ASC
	`, chain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SettlementTx
	for rows.Next() {
		var (
			tx       model.SettlementTx
			gasUsed  int64
			gasPrice string
			blockNum int64
			blockTs  int64
		)
		if err := rows.Scan(&tx.Chain, &tx.TxHash, &tx.User, &tx.Contract, &tx.Method, &gasUsed, &gasPrice, &blockNum, &blockTs); err != nil {
			return nil, err
		}
		parsed, err := parseNumeric(gasPrice)
		if err != nil {
			return nil, err
		}
		tx.GasUsed = uint64(gasUsed)
		tx.GasPriceWei = parsed
		tx.BlockNumber = uint64(blockNum)
		tx.BlockTimestamp = uint64(blockTs)
		out = append(out, tx)
	}
	return out, rows.Err()
}
