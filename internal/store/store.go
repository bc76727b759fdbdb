package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/pairstream/pairstream/internal/common"
	"github.com/pairstream/pairstream/internal/config"
	"github.com/pairstream/pairstream/internal/logger"
	"github.com/russross/meddler"
)

const (
	upsertSyncEventSQL = `
		INSERT INTO sync_events (
			pool_id, block_number, block_hash, block_timestamp, tx_hash,
			log_index, reserve0, reserve1, is_confirmed, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pool_id, block_number, tx_hash, log_index) DO UPDATE SET
			block_hash = excluded.block_hash,
			block_timestamp = excluded.block_timestamp,
			reserve0 = excluded.reserve0,
			reserve1 = excluded.reserve1,
			is_confirmed = excluded.is_confirmed`

	upsertPricePointSQL = `
		INSERT INTO price_points (
			pool_id, block_number, block_timestamp, tx_hash, log_index, price,
			reserve0_raw, reserve1_raw, reserve0_human, reserve1_human,
			is_confirmed, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pool_id, block_number, tx_hash, log_index) DO UPDATE SET
			block_timestamp = excluded.block_timestamp,
			price = excluded.price,
			reserve0_raw = excluded.reserve0_raw,
			reserve1_raw = excluded.reserve1_raw,
			reserve0_human = excluded.reserve0_human,
			reserve1_human = excluded.reserve1_human,
			is_confirmed = excluded.is_confirmed`

	upsertCursorSQL = `
		INSERT INTO indexer_state (
			pool_id, last_indexed_block, last_block_hash,
			reserve0, reserve1, reorg_count, total_events_processed, last_updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pool_id) DO UPDATE SET
			last_indexed_block = excluded.last_indexed_block,
			last_block_hash = excluded.last_block_hash,
			reserve0 = excluded.reserve0,
			reserve1 = excluded.reserve1,
			reorg_count = excluded.reorg_count,
			total_events_processed = excluded.total_events_processed,
			last_updated_at = excluded.last_updated_at`
)

// Store is the SQLite-backed persistence layer. All batch writes happen in
// one transaction so the cursor never outruns the rows it describes.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log.WithComponent(internalcommon.ComponentStore),
	}
}

// DB exposes the underlying handle for read-only collaborators.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsurePool returns the id of the configured pair, inserting it first if
// this is the first run against the database.
func (s *Store) EnsurePool(ctx context.Context, pair config.PairConfig) (int64, error) {
	address := common.HexToAddress(pair.Address)

	pool := new(Pool)
	err := meddler.QueryRow(s.db, pool, "SELECT * FROM pools WHERE address = ?", address.Hex())
	if err == nil {
		return pool.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, newDatabaseError("query pool", err)
	}

	pool = &Pool{
		Address:        address,
		Name:           pair.Name,
		Token0Address:  common.HexToAddress(pair.Token0.Address),
		Token0Symbol:   pair.Token0.Symbol,
		Token0Decimals: pair.Token0.Decimals,
		Token1Address:  common.HexToAddress(pair.Token1.Address),
		Token1Symbol:   pair.Token1.Symbol,
		Token1Decimals: pair.Token1.Decimals,
		CreatedAt:      time.Now().UTC().Unix(),
	}

	if err := meddler.Insert(s.db, "pools", pool); err != nil {
		return 0, newDatabaseError("insert pool", err)
	}

	s.log.Infof("registered pool %s (%s) id=%d", pair.Name, address.Hex(), pool.ID)
	return pool.ID, nil
}

// GetPool retrieves a pool by address, or nil when unknown.
func (s *Store) GetPool(ctx context.Context, address common.Address) (*Pool, error) {
	pool := new(Pool)
	err := meddler.QueryRow(s.db, pool, "SELECT * FROM pools WHERE address = ?", address.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newDatabaseError("query pool", err)
	}
	return pool, nil
}

// ListPools returns all registered pools.
func (s *Store) ListPools(ctx context.Context) ([]*Pool, error) {
	var pools []*Pool
	if err := meddler.QueryAll(s.db, &pools, "SELECT * FROM pools ORDER BY id ASC"); err != nil {
		return nil, newDatabaseError("list pools", err)
	}
	return pools, nil
}

// ApplyBatch persists a processed sub-range: every sync event, every price
// point, and the advanced cursor, atomically. On any failure nothing is
// written and the previous cursor stays in effect.
func (s *Store) ApplyBatch(ctx context.Context, events []*SyncEvent, prices []*PricePoint, cursor *Cursor) error {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newDatabaseError("begin batch", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback batch transaction: %v", err)
		}
	}()

	now := time.Now().UTC().Unix()

	for _, event := range events {
		if _, err := tx.ExecContext(ctx, upsertSyncEventSQL,
			event.PoolID, event.BlockNumber, event.BlockHash.Hex(), event.BlockTimestamp,
			event.TxHash.Hex(), event.LogIndex, event.Reserve0.String(), event.Reserve1.String(),
			event.IsConfirmed, now,
		); err != nil {
			return newDatabaseError(fmt.Sprintf("upsert sync event at block %d", event.BlockNumber), err)
		}
	}

	for _, price := range prices {
		if _, err := tx.ExecContext(ctx, upsertPricePointSQL,
			price.PoolID, price.BlockNumber, price.BlockTimestamp, price.TxHash.Hex(),
			price.LogIndex, price.Price, price.Reserve0Raw.String(), price.Reserve1Raw.String(),
			price.Reserve0Human, price.Reserve1Human, price.IsConfirmed, now,
		); err != nil {
			return newDatabaseError(fmt.Sprintf("upsert price point at block %d", price.BlockNumber), err)
		}
	}

	if cursor != nil {
		if err := s.saveCursorTx(ctx, tx, cursor); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return newDatabaseError("commit batch", err)
	}

	BatchCommitLog(len(events), time.Since(start))
	s.log.Debugf("batch committed: events=%d prices=%d duration=%v",
		len(events), len(prices), time.Since(start))

	return nil
}

// SaveCursor persists the cursor outside of a batch, e.g. after a rollback.
func (s *Store) SaveCursor(ctx context.Context, cursor *Cursor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newDatabaseError("begin cursor save", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback cursor transaction: %v", err)
		}
	}()

	if err := s.saveCursorTx(ctx, tx, cursor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return newDatabaseError("commit cursor save", err)
	}
	return nil
}

func (s *Store) saveCursorTx(ctx context.Context, tx *sql.Tx, cursor *Cursor) error {
	var hash any
	if cursor.LastBlockHash != nil {
		hash = cursor.LastBlockHash.Hex()
	}

	reserve0, reserve1 := "0", "0"
	if cursor.Reserve0 != nil {
		reserve0 = cursor.Reserve0.String()
	}
	if cursor.Reserve1 != nil {
		reserve1 = cursor.Reserve1.String()
	}

	if _, err := tx.ExecContext(ctx, upsertCursorSQL,
		cursor.PoolID, cursor.LastIndexedBlock, hash,
		reserve0, reserve1, cursor.ReorgCount, cursor.TotalEventsProcessed,
		time.Now().UTC().Unix(),
	); err != nil {
		return newDatabaseError("save cursor", err)
	}
	return nil
}

// LoadCursor returns the persisted cursor for a pool, or nil on first run.
func (s *Store) LoadCursor(ctx context.Context, poolID int64) (*Cursor, error) {
	cursor := new(Cursor)
	err := meddler.QueryRow(s.db, cursor, "SELECT * FROM indexer_state WHERE pool_id = ?", poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newDatabaseError("load cursor", err)
	}
	return cursor, nil
}

// InvalidateFrom marks every sync event and price point at or above
// fromBlock as unconfirmed. Rows are kept: invalidation is a flag flip, not
// a deletion, so the history of a reorg stays auditable.
func (s *Store) InvalidateFrom(ctx context.Context, poolID int64, fromBlock uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newDatabaseError("begin invalidate", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback invalidate transaction: %v", err)
		}
	}()

	eventsRes, err := tx.ExecContext(ctx,
		"UPDATE sync_events SET is_confirmed = 0 WHERE pool_id = ? AND block_number >= ?",
		poolID, fromBlock)
	if err != nil {
		return newDatabaseError("invalidate sync events", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE price_points SET is_confirmed = 0 WHERE pool_id = ? AND block_number >= ?",
		poolID, fromBlock); err != nil {
		return newDatabaseError("invalidate price points", err)
	}

	if err := tx.Commit(); err != nil {
		return newDatabaseError("commit invalidate", err)
	}

	affected, _ := eventsRes.RowsAffected()
	InvalidatedRowsLog(affected)
	s.log.Warnf("invalidated records: pool=%d from_block=%d events=%d", poolID, fromBlock, affected)

	return nil
}

// ConfirmUpTo marks every still-unconfirmed row at or below upToBlock as
// confirmed.
func (s *Store) ConfirmUpTo(ctx context.Context, poolID int64, upToBlock uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newDatabaseError("begin confirm", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback confirm transaction: %v", err)
		}
	}()

	eventsRes, err := tx.ExecContext(ctx,
		"UPDATE sync_events SET is_confirmed = 1 WHERE pool_id = ? AND block_number <= ? AND is_confirmed = 0",
		poolID, upToBlock)
	if err != nil {
		return newDatabaseError("confirm sync events", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE price_points SET is_confirmed = 1 WHERE pool_id = ? AND block_number <= ? AND is_confirmed = 0",
		poolID, upToBlock); err != nil {
		return newDatabaseError("confirm price points", err)
	}

	if err := tx.Commit(); err != nil {
		return newDatabaseError("commit confirm", err)
	}

	affected, _ := eventsRes.RowsAffected()
	if affected > 0 {
		ConfirmedRowsLog(affected)
		s.log.Debugf("confirmed records: pool=%d up_to_block=%d events=%d", poolID, upToBlock, affected)
	}

	return nil
}

// LatestPrice returns the newest confirmed price point, or nil when none
// exists yet.
func (s *Store) LatestPrice(ctx context.Context, poolID int64) (*PricePoint, error) {
	price := new(PricePoint)
	err := meddler.QueryRow(s.db, price, `
		SELECT * FROM price_points
		WHERE pool_id = ? AND is_confirmed = 1
		ORDER BY block_number DESC, log_index DESC
		LIMIT 1`, poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newDatabaseError("query latest price", err)
	}
	return price, nil
}

// RecentPrices returns up to limit confirmed price points, newest first.
func (s *Store) RecentPrices(ctx context.Context, poolID int64, limit int) ([]*PricePoint, error) {
	var prices []*PricePoint
	err := meddler.QueryAll(s.db, &prices, `
		SELECT * FROM price_points
		WHERE pool_id = ? AND is_confirmed = 1
		ORDER BY block_number DESC, log_index DESC
		LIMIT ?`, poolID, limit)
	if err != nil {
		return nil, newDatabaseError("query recent prices", err)
	}
	return prices, nil
}

// PriceHistory returns confirmed price points in a block-timestamp window,
// oldest first.
func (s *Store) PriceHistory(ctx context.Context, poolID int64, fromTs, toTs uint64) ([]*PricePoint, error) {
	var prices []*PricePoint
	err := meddler.QueryAll(s.db, &prices, `
		SELECT * FROM price_points
		WHERE pool_id = ? AND is_confirmed = 1 AND block_timestamp BETWEEN ? AND ?
		ORDER BY block_number ASC, log_index ASC`, poolID, fromTs, toTs)
	if err != nil {
		return nil, newDatabaseError("query price history", err)
	}
	return prices, nil
}

// PriceStatsForPeriod aggregates confirmed prices over a block-timestamp window.
func (s *Store) PriceStatsForPeriod(ctx context.Context, poolID int64, fromTs, toTs uint64) (*PriceStats, error) {
	stats := new(PriceStats)
	err := meddler.QueryRow(s.db, stats, `
		SELECT COALESCE(MIN(price), 0) AS min_price,
		       COALESCE(MAX(price), 0) AS max_price,
		       COALESCE(AVG(price), 0) AS avg_price,
		       COUNT(*) AS count
		FROM price_points
		WHERE pool_id = ? AND is_confirmed = 1 AND block_timestamp BETWEEN ? AND ?`,
		poolID, fromTs, toTs)
	if err != nil {
		return nil, newDatabaseError("query price stats", err)
	}
	return stats, nil
}

// RecentSyncEvents returns up to limit sync events, newest first, confirmed
// or not.
func (s *Store) RecentSyncEvents(ctx context.Context, poolID int64, limit int) ([]*SyncEvent, error) {
	var events []*SyncEvent
	err := meddler.QueryAll(s.db, &events, `
		SELECT * FROM sync_events
		WHERE pool_id = ?
		ORDER BY block_number DESC, log_index DESC
		LIMIT ?`, poolID, limit)
	if err != nil {
		return nil, newDatabaseError("query recent sync events", err)
	}
	return events, nil
}
