package reorg

import (
	"context"
	"fmt"
	"sync"

	internalcommon "github.com/pairstream/pairstream/internal/common"
	"github.com/pairstream/pairstream/internal/logger"
	"github.com/pairstream/pairstream/internal/rpc"
)

// Detector tracks the last canonical block the indexer has trusted and
// decides whether newly observed chain state still descends from it.
type Detector struct {
	mu         sync.Mutex
	lastBlock  *rpc.BlockRecord
	reorgCount uint64
	log        *logger.Logger
}

// NewDetector creates a detector with no tracked history.
func NewDetector(log *logger.Logger) *Detector {
	return &Detector{
		log: log.WithComponent(internalcommon.ComponentReorgDetector),
	}
}

// LastBlock returns the currently tracked tip, or nil when no block has
// been recorded yet.
func (d *Detector) LastBlock() *rpc.BlockRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastBlock == nil {
		return nil
	}
	rec := *d.lastBlock
	return &rec
}

// SetLastBlock records the newest trusted block. Called by the indexer after
// a batch has been durably persisted.
func (d *Detector) SetLastBlock(rec *rpc.BlockRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	copied := *rec
	d.lastBlock = &copied
}

// ReorgCount returns the number of reorgs detected so far.
func (d *Detector) ReorgCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reorgCount
}

// DetectReorg checks whether the chain at currentBlockNumber still descends
// from the tracked tip. It returns the fork point (the highest block number
// common to both histories) and true when a divergence is found, or false
// when the chain is continuous. RPC failures abort detection without
// touching the counter or the tracked tip.
//
// When the new block directly follows the tracked tip a single fetch
// settles the question: a parent hash mismatch means only the tip itself
// was replaced, so the fork point is one below it. Anything else (a gap,
// or a re-check at the same height) falls back to re-fetching the tracked
// tip and, if its hash changed, binary-searching for the highest block
// where the stored chain and the live chain still agree.
func (d *Detector) DetectReorg(ctx context.Context, chain rpc.ChainReader, currentBlockNumber uint64) (uint64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastBlock == nil {
		// No history to diverge from.
		return 0, false, nil
	}

	last := *d.lastBlock

	if currentBlockNumber == last.Number+1 {
		next, err := chain.GetBlock(ctx, currentBlockNumber)
		if err != nil {
			return 0, false, fmt.Errorf("fetch block %d: %w", currentBlockNumber, err)
		}

		if next.ParentHash == last.Hash {
			return 0, false, nil
		}

		// Only the tip was replaced; its parent is the last common block.
		forkPoint := uint64(0)
		if last.Number > 0 {
			forkPoint = last.Number - 1
		}
		d.recordReorg(forkPoint, last.Number)
		return forkPoint, true, nil
	}

	// Re-fetch the tracked tip. If its hash is unchanged the chain below
	// currentBlockNumber is intact and any gap is just blocks we have not
	// processed yet.
	current, err := chain.GetBlock(ctx, last.Number)
	if err != nil {
		return 0, false, fmt.Errorf("refetch block %d: %w", last.Number, err)
	}

	if current.Hash == last.Hash {
		return 0, false, nil
	}

	d.log.Warnf("tracked tip replaced: block=%d stored_hash=%s current_hash=%s",
		last.Number, last.Hash.Hex(), current.Hash.Hex())

	forkPoint, err := d.findForkPoint(ctx, chain, last.Number)
	if err != nil {
		return 0, false, err
	}

	d.recordReorg(forkPoint, last.Number)
	return forkPoint, true, nil
}

// findForkPoint binary-searches [0, upper] for the highest block m where
// the live chain is still internally continuous with our view, i.e. where
// block m+1 names block m as its parent. Each probe costs two fetches.
func (d *Detector) findForkPoint(ctx context.Context, chain rpc.ChainReader, upper uint64) (uint64, error) {
	lo, hi := uint64(0), upper

	for lo < hi {
		mid := lo + (hi-lo+1)/2

		continuous, err := d.continuousAt(ctx, chain, mid)
		if err != nil {
			return 0, err
		}

		if continuous {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	return lo, nil
}

func (d *Detector) continuousAt(ctx context.Context, chain rpc.ChainReader, blockNum uint64) (bool, error) {
	block, err := chain.GetBlock(ctx, blockNum)
	if err != nil {
		return false, fmt.Errorf("fetch block %d: %w", blockNum, err)
	}

	next, err := chain.GetBlock(ctx, blockNum+1)
	if err != nil {
		return false, fmt.Errorf("fetch block %d: %w", blockNum+1, err)
	}

	return next.ParentHash == block.Hash, nil
}

// recordReorg bumps the counter once per detected divergence and drops the
// now-stale tracked tip so the indexer re-records it after rollback.
// Caller holds d.mu.
func (d *Detector) recordReorg(forkPoint, trackedTip uint64) {
	d.reorgCount++

	depth := trackedTip - forkPoint
	ReorgDetectedLog(depth, forkPoint)

	d.log.Warnf("reorg detected: fork_point=%d depth=%d total=%d", forkPoint, depth, d.reorgCount)

	d.lastBlock = nil
}
