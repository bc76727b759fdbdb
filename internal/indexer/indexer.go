// Package indexer drives the incremental batch indexing loop: poll the
// chain head, fetch Sync logs in bounded sub-ranges, validate reserves,
// derive prices, and persist each batch atomically before advancing.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pairstream/pairstream/internal/broadcast"
	"github.com/pairstream/pairstream/internal/common"
	"github.com/pairstream/pairstream/internal/config"
	"github.com/pairstream/pairstream/internal/events"
	"github.com/pairstream/pairstream/internal/logger"
	"github.com/pairstream/pairstream/internal/metrics"
	"github.com/pairstream/pairstream/internal/pricing"
	"github.com/pairstream/pairstream/internal/reorg"
	"github.com/pairstream/pairstream/internal/rpc"
	"github.com/pairstream/pairstream/internal/state"
	"github.com/pairstream/pairstream/internal/store"
)

// PersistenceLayer is the durable storage contract the indexer writes
// through. *store.Store is the production implementation.
type PersistenceLayer interface {
	ApplyBatch(ctx context.Context, events []*store.SyncEvent, prices []*store.PricePoint, cursor *store.Cursor) error
	SaveCursor(ctx context.Context, cursor *store.Cursor) error
	LoadCursor(ctx context.Context, poolID int64) (*store.Cursor, error)
	InvalidateFrom(ctx context.Context, poolID int64, fromBlock uint64) error
	ConfirmUpTo(ctx context.Context, poolID int64, upToBlock uint64) error
}

var _ PersistenceLayer = (*store.Store)(nil)

// Sink receives a price update after its price point has been durably
// persisted. Delivery is best-effort.
type Sink interface {
	Publish(update broadcast.PriceUpdate)
}

// Indexer tails Sync events for a single pair.
type Indexer struct {
	cfg  config.IndexerConfig
	pair config.PairConfig

	chain    rpc.ChainReader
	store    PersistenceLayer
	tracker  *state.Tracker
	detector *reorg.Detector
	sink     Sink
	heads    <-chan uint64

	poolID     int64
	pairAddr   ethcommon.Address
	maxReserve *big.Int

	// next is the first block the following batch will scan
	next uint64

	// totalEvents counts every event persisted over the pool's lifetime
	totalEvents uint64

	log *logger.Logger
}

// New creates an indexer for one pool. sink and heads may be nil; the loop
// then runs on the poll ticker alone.
func New(
	cfg config.IndexerConfig,
	pair config.PairConfig,
	poolID int64,
	chain rpc.ChainReader,
	persistence PersistenceLayer,
	sink Sink,
	heads <-chan uint64,
	log *logger.Logger,
) *Indexer {
	return &Indexer{
		cfg:        cfg,
		pair:       pair,
		chain:      chain,
		store:      persistence,
		tracker:    state.NewTracker(log),
		detector:   reorg.NewDetector(log),
		sink:       sink,
		heads:      heads,
		poolID:     poolID,
		pairAddr:   ethcommon.HexToAddress(pair.Address),
		maxReserve: state.DefaultMaxReserve(),
		log:        log.WithComponent(common.ComponentIndexer),
	}
}

// Tracker exposes the reserve state for health checks and status output.
func (i *Indexer) Tracker() *state.Tracker {
	return i.tracker
}

// Run restores the cursor and processes batches until ctx is cancelled.
// Cancellation between batches is a clean shutdown and returns nil.
func (i *Indexer) Run(ctx context.Context) error {
	if err := i.restore(ctx); err != nil {
		return fmt.Errorf("failed to restore indexer state: %w", err)
	}

	ticker := time.NewTicker(i.cfg.PollInterval.Duration)
	defer ticker.Stop()

	// First pass immediately instead of waiting a full poll interval.
	if err := i.tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			i.log.Info("indexer stopping")
			i.saveSnapshot()
			return nil
		case <-ticker.C:
		case <-i.headWakeup():
		}

		if err := i.tick(ctx); err != nil {
			return err
		}
	}
}

func (i *Indexer) headWakeup() <-chan uint64 {
	if i.heads == nil {
		// A nil channel blocks forever, leaving the ticker in charge.
		return nil
	}
	return i.heads
}

// restore loads the durable cursor, falling back to the JSON snapshot file
// when the database has no record yet.
func (i *Indexer) restore(ctx context.Context) error {
	cursor, err := i.store.LoadCursor(ctx, i.poolID)
	if err != nil {
		return err
	}

	if cursor != nil {
		i.tracker.Restore(state.Snapshot{
			Reserve0:      cursor.Reserve0,
			Reserve1:      cursor.Reserve1,
			LastBlock:     cursor.LastIndexedBlock,
			LastBlockHash: cursor.LastBlockHash,
			ReorgCount:    cursor.ReorgCount,
		})
		i.next = cursor.LastIndexedBlock + 1
		i.totalEvents = cursor.TotalEventsProcessed
		if cursor.LastBlockHash != nil {
			i.detector.SetLastBlock(&rpc.BlockRecord{
				Number: cursor.LastIndexedBlock,
				Hash:   *cursor.LastBlockHash,
			})
		}
		i.log.Infow("resuming from durable cursor",
			"lastIndexedBlock", cursor.LastIndexedBlock, "reorgCount", cursor.ReorgCount)
		return nil
	}

	if i.cfg.StateFile != "" {
		if err := i.tracker.LoadSnapshot(i.cfg.StateFile); err != nil {
			return err
		}
		if last := i.tracker.LastBlock(); last > 0 {
			i.next = last + 1
			if hash, ok := i.tracker.LastBlockHash(); ok {
				i.detector.SetLastBlock(&rpc.BlockRecord{Number: last, Hash: hash})
			}
			i.log.Infow("resuming from snapshot file",
				"stateFile", i.cfg.StateFile, "lastBlock", last)
			return nil
		}
	}

	i.next = i.cfg.StartBlock
	i.log.Infow("starting fresh", "startBlock", i.next)
	return nil
}

// tick processes every pending sub-range up to the current head, checking
// for shutdown between batches. Transient RPC failures end the tick early
// and are retried on the next wakeup; anything else is fatal.
func (i *Indexer) tick(ctx context.Context) error {
	head, err := i.chain.GetLatestBlockNumber(ctx)
	if err != nil {
		i.log.Warnw("failed to fetch chain head, will retry", "error", err)
		return nil
	}
	metrics.ChainHeadSet(i.pair.Name, head)

	for i.next <= head {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		to := min(i.next+i.cfg.BatchSize-1, head)
		if err := i.processRange(ctx, i.next, to); err != nil {
			var rpcErr *rpc.RPCError
			if errors.As(err, &rpcErr) {
				i.log.Warnw("batch failed on RPC error, will retry",
					"fromBlock", i.next, "toBlock", to, "error", err)
				metrics.ErrorInc(common.ComponentIndexer, "transient")
				return nil
			}
			metrics.ErrorInc(common.ComponentIndexer, "fatal")
			return fmt.Errorf("failed to process range [%d, %d]: %w", i.next, to, err)
		}
	}

	return i.confirm(ctx, head)
}

// processRange indexes one sub-range as a single transaction. The in-memory
// cursor advances only after the batch is durably persisted.
func (i *Indexer) processRange(ctx context.Context, from, to uint64) error {
	started := time.Now()

	// A reorg can only be detected against recorded history; on the very
	// first batch there is nothing to diverge from.
	forkPoint, reorged, err := i.detector.DetectReorg(ctx, i.chain, from)
	if err != nil {
		return err
	}
	if reorged {
		return i.handleReorg(ctx, forkPoint)
	}

	logs, to, err := i.fetchLogs(ctx, from, to)
	if err != nil {
		return err
	}

	records, err := i.fetchBlockRecords(ctx, logs, to)
	if err != nil {
		return err
	}

	syncEvents, pricePoints, updates, err := i.buildBatch(logs, records)
	if err != nil {
		return err
	}

	toRecord, ok := records[to]
	if !ok {
		return fmt.Errorf("missing block record for range top %d", to)
	}
	snap := i.tracker.Snapshot()
	cursor := &store.Cursor{
		PoolID:               i.poolID,
		LastIndexedBlock:     to,
		LastBlockHash:        &toRecord.Hash,
		Reserve0:             snap.Reserve0,
		Reserve1:             snap.Reserve1,
		ReorgCount:           snap.ReorgCount,
		TotalEventsProcessed: i.totalEvents + uint64(len(syncEvents)),
	}

	if err := i.store.ApplyBatch(ctx, syncEvents, pricePoints, cursor); err != nil {
		return err
	}

	// The batch is durable, advance everything that was held back.
	i.tracker.SetBlockHash(toRecord.Hash)
	i.detector.SetLastBlock(toRecord)
	i.next = to + 1
	i.totalEvents += uint64(len(syncEvents))

	metrics.BlocksProcessedInc(i.pair.Name, to-from+1)
	metrics.EventsDecodedInc(i.pair.Name, len(syncEvents))
	metrics.LastIndexedBlockSet(i.pair.Name, to)
	metrics.BatchProcessingTimeLog(i.pair.Name, time.Since(started))
	if elapsed := time.Since(started).Seconds(); elapsed > 0 {
		metrics.IndexingRateLog(i.pair.Name, float64(to-from+1)/elapsed)
	}

	for _, update := range updates {
		metrics.CurrentPriceSet(i.pair.Name, update.Price)
		if i.sink != nil {
			i.sink.Publish(update)
		}
	}

	i.saveSnapshot()

	i.log.Infow("batch indexed",
		"fromBlock", from, "toBlock", to,
		"events", len(syncEvents), "duration", time.Since(started))

	return nil
}

// fetchLogs queries Sync logs for [from, to], shrinking the range when the
// provider rejects it as too large. The possibly reduced upper bound is
// returned so the cursor never claims blocks that were not scanned.
func (i *Indexer) fetchLogs(ctx context.Context, from, to uint64) ([]types.Log, uint64, error) {
	for {
		query, err := events.SyncFilter(i.pairAddr, from, to)
		if err != nil {
			return nil, 0, err
		}

		logs, err := i.chain.GetLogs(ctx, query)
		if err == nil {
			return logs, to, nil
		}

		ok, errData := rpc.IsTooManyResultsError(err)
		if !ok {
			return nil, 0, err
		}

		if suggestedFrom, suggestedTo, ok := rpc.ParseSuggestedBlockRange(errData); ok &&
			suggestedFrom == from && suggestedTo < to {
			i.log.Infow("too many logs, using suggested range",
				"fromBlock", from, "toBlock", suggestedTo, "originalToBlock", to)
			to = suggestedTo
			continue
		}

		mid := from + (to-from)/2
		if mid == to {
			return nil, 0, fmt.Errorf("single block %d has too many logs: %w", from, err)
		}
		i.log.Infow("too many logs, splitting range in half",
			"fromBlock", from, "toBlock", mid, "originalToBlock", to)
		to = mid
	}
}

// fetchBlockRecords fetches the header data for every block carrying a log
// plus the range's upper bound, which seeds the next batch's reorg check.
func (i *Indexer) fetchBlockRecords(ctx context.Context, logs []types.Log, to uint64) (map[uint64]*rpc.BlockRecord, error) {
	nums := make([]uint64, 0, len(logs)+1)
	seen := make(map[uint64]struct{}, len(logs)+1)
	for _, lg := range logs {
		if _, ok := seen[lg.BlockNumber]; !ok {
			seen[lg.BlockNumber] = struct{}{}
			nums = append(nums, lg.BlockNumber)
		}
	}
	if _, ok := seen[to]; !ok {
		nums = append(nums, to)
	}

	records, err := i.chain.BatchGetBlocks(ctx, nums)
	if err != nil {
		return nil, err
	}

	byNumber := make(map[uint64]*rpc.BlockRecord, len(records))
	for _, rec := range records {
		byNumber[rec.Number] = rec
	}
	return byNumber, nil
}

// buildBatch decodes and validates every log in block/log-index order and
// derives the corresponding rows. A validation failure aborts the whole
// batch; corrupt data is never skipped over.
func (i *Indexer) buildBatch(
	logs []types.Log,
	records map[uint64]*rpc.BlockRecord,
) ([]*store.SyncEvent, []*store.PricePoint, []broadcast.PriceUpdate, error) {
	sort.SliceStable(logs, func(a, b int) bool {
		if logs[a].BlockNumber != logs[b].BlockNumber {
			return logs[a].BlockNumber < logs[b].BlockNumber
		}
		return logs[a].Index < logs[b].Index
	})

	syncEvents := make([]*store.SyncEvent, 0, len(logs))
	pricePoints := make([]*store.PricePoint, 0, len(logs))
	updates := make([]broadcast.PriceUpdate, 0, len(logs))

	for _, lg := range logs {
		rec, ok := records[lg.BlockNumber]
		if !ok {
			return nil, nil, nil, fmt.Errorf("missing block record for block %d", lg.BlockNumber)
		}

		obs, err := events.DecodeSync(lg, rec.ParentHash, rec.Timestamp)
		if err != nil {
			return nil, nil, nil, err
		}

		if err := i.tracker.Apply(obs, i.maxReserve); err != nil {
			return nil, nil, nil, err
		}

		price, err := pricing.Price(obs.Reserve0, obs.Reserve1,
			i.pair.Token0.Decimals, i.pair.Token1.Decimals)
		if err != nil {
			return nil, nil, nil, err
		}

		syncEvents = append(syncEvents, &store.SyncEvent{
			PoolID:         i.poolID,
			BlockNumber:    obs.BlockNumber,
			BlockHash:      obs.BlockHash,
			BlockTimestamp: obs.Timestamp,
			TxHash:         obs.TxHash,
			LogIndex:       obs.LogIndex,
			Reserve0:       obs.Reserve0,
			Reserve1:       obs.Reserve1,
		})
		pricePoints = append(pricePoints, &store.PricePoint{
			PoolID:         i.poolID,
			BlockNumber:    obs.BlockNumber,
			BlockTimestamp: obs.Timestamp,
			TxHash:         obs.TxHash,
			LogIndex:       obs.LogIndex,
			Price:          price,
			Reserve0Raw:    obs.Reserve0,
			Reserve1Raw:    obs.Reserve1,
			Reserve0Human:  pricing.Humanize(obs.Reserve0, i.pair.Token0.Decimals),
			Reserve1Human:  pricing.Humanize(obs.Reserve1, i.pair.Token1.Decimals),
		})
		updates = append(updates, broadcast.PriceUpdate{
			Pool:        i.pair.Name,
			Price:       price,
			BlockNumber: obs.BlockNumber,
			Timestamp:   obs.Timestamp,
			Reserves: broadcast.Reserves{
				Reserve0: obs.Reserve0.String(),
				Reserve1: obs.Reserve1.String(),
			},
		})
	}

	return syncEvents, pricePoints, updates, nil
}

// handleReorg rolls the database and the in-memory state back to the fork
// point. Re-indexing the replaced range happens through the normal batch
// path, where the idempotent upserts overwrite the stale rows.
func (i *Indexer) handleReorg(ctx context.Context, forkPoint uint64) error {
	i.log.Warnw("rolling back after reorg", "forkPoint", forkPoint, "nextBlock", i.next)

	if err := i.store.InvalidateFrom(ctx, i.poolID, forkPoint+1); err != nil {
		return err
	}

	i.tracker.InvalidateFrom(forkPoint)
	i.tracker.IncrementReorgCount()

	snap := i.tracker.Snapshot()
	cursor := &store.Cursor{
		PoolID:               i.poolID,
		LastIndexedBlock:     forkPoint,
		Reserve0:             snap.Reserve0,
		Reserve1:             snap.Reserve1,
		ReorgCount:           snap.ReorgCount,
		TotalEventsProcessed: i.totalEvents,
	}
	if err := i.store.SaveCursor(ctx, cursor); err != nil {
		return err
	}

	i.next = forkPoint + 1
	i.saveSnapshot()

	return nil
}

// confirm marks rows deep enough below the head as final.
func (i *Indexer) confirm(ctx context.Context, head uint64) error {
	if head < i.cfg.Confirmations {
		return nil
	}
	confirmedUpTo := head - i.cfg.Confirmations
	if confirmedUpTo >= i.next {
		// Never confirm past what has been indexed.
		if i.next == 0 {
			return nil
		}
		confirmedUpTo = i.next - 1
	}
	return i.store.ConfirmUpTo(ctx, i.poolID, confirmedUpTo)
}

func (i *Indexer) saveSnapshot() {
	if i.cfg.StateFile == "" {
		return
	}
	if err := i.tracker.SaveSnapshot(i.cfg.StateFile); err != nil {
		i.log.Errorw("failed to save state snapshot", "stateFile", i.cfg.StateFile, "error", err)
	}
}
