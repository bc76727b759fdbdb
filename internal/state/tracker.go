// Package state holds the validated reserve cursor for the tracked pair.
//
// The tracker is owned by the indexing loop, its single writer. Readers
// (health checks, the broadcast layer) take immutable snapshots instead of
// sharing the mutable structure.
package state

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/pairstream/pairstream/internal/common"
	"github.com/pairstream/pairstream/internal/events"
	"github.com/pairstream/pairstream/internal/logger"
)

// DefaultMaxReserve bounds accepted reserves at 10^30, far above any real
// pool but low enough to catch decoding corruption.
func DefaultMaxReserve() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
}

// Tracker maintains the current validated reserves and the last processed
// block, with all-or-nothing updates.
type Tracker struct {
	mu sync.RWMutex

	reserve0      *big.Int
	reserve1      *big.Int
	lastBlock     uint64
	lastBlockHash *common.Hash
	reorgCount    uint64

	log *logger.Logger
}

// Snapshot is an immutable copy of the tracker published to readers.
type Snapshot struct {
	Reserve0      *big.Int
	Reserve1      *big.Int
	LastBlock     uint64
	LastBlockHash *common.Hash
	ReorgCount    uint64
}

// NewTracker creates an empty tracker.
func NewTracker(log *logger.Logger) *Tracker {
	return &Tracker{
		reserve0: new(big.Int),
		reserve1: new(big.Int),
		log:      log.WithComponent(internalcommon.ComponentStateTracker),
	}
}

// Apply validates an observation and, if it passes, atomically replaces both
// reserves and the cursor. A failed call leaves the tracker untouched.
func (t *Tracker) Apply(obs *events.ReserveObservation, maxReserve *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if obs.BlockNumber < t.lastBlock {
		return newStateError(KindReorgSuspected,
			"observation block %d is below cursor %d", obs.BlockNumber, t.lastBlock)
	}

	if obs.Reserve0 == nil || obs.Reserve0.Sign() == 0 {
		return newStateError(KindInvalidReserve,
			"zero reserve0 at block %d", obs.BlockNumber)
	}
	if obs.Reserve1 == nil || obs.Reserve1.Sign() == 0 {
		return newStateError(KindInvalidReserve,
			"zero reserve1 at block %d", obs.BlockNumber)
	}
	if obs.Reserve0.Cmp(maxReserve) > 0 {
		return newStateError(KindInvalidReserve,
			"reserve0 %s exceeds maximum %s at block %d", obs.Reserve0, maxReserve, obs.BlockNumber)
	}
	if obs.Reserve1.Cmp(maxReserve) > 0 {
		return newStateError(KindInvalidReserve,
			"reserve1 %s exceeds maximum %s at block %d", obs.Reserve1, maxReserve, obs.BlockNumber)
	}

	t.reserve0 = new(big.Int).Set(obs.Reserve0)
	t.reserve1 = new(big.Int).Set(obs.Reserve1)
	t.lastBlock = obs.BlockNumber

	t.log.Debugf("state updated: reserve0=%s reserve1=%s block=%d",
		t.reserve0, t.reserve1, t.lastBlock)

	return nil
}

// Reserves returns copies of the current reserves.
func (t *Tracker) Reserves() (*big.Int, *big.Int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.reserve0), new(big.Int).Set(t.reserve1)
}

// LastBlock returns the cursor block number.
func (t *Tracker) LastBlock() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastBlock
}

// LastBlockHash returns the tracked tip hash if one is set.
func (t *Tracker) LastBlockHash() (common.Hash, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastBlockHash == nil {
		return common.Hash{}, false
	}
	return *t.lastBlockHash, true
}

// SetBlockHash records the hash of the last fully processed block.
func (t *Tracker) SetBlockHash(hash common.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := hash
	t.lastBlockHash = &h
}

// ReorgCount returns the number of reorgs observed over the tracker's life.
func (t *Tracker) ReorgCount() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reorgCount
}

// IncrementReorgCount bumps the monotonic reorg counter.
func (t *Tracker) IncrementReorgCount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reorgCount++
	t.log.Warnf("reorg count incremented to %d", t.reorgCount)
}

// InvalidateFrom rolls the cursor back to the fork point. The block hash is
// cleared so it is re-fetched, and the reserves are kept as a best-effort
// approximation until the range above the fork is re-indexed.
func (t *Tracker) InvalidateFrom(forkPoint uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Infof("invalidating state from block %d (was at block %d)", forkPoint, t.lastBlock)
	t.lastBlock = forkPoint
	t.lastBlockHash = nil
}

// IsInitialized reports whether at least one observation has been accepted.
func (t *Tracker) IsInitialized() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reserve0.Sign() != 0 && t.reserve1.Sign() != 0
}

// Snapshot returns an immutable copy of the full tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Reserve0:   new(big.Int).Set(t.reserve0),
		Reserve1:   new(big.Int).Set(t.reserve1),
		LastBlock:  t.lastBlock,
		ReorgCount: t.reorgCount,
	}
	if t.lastBlockHash != nil {
		h := *t.lastBlockHash
		snap.LastBlockHash = &h
	}
	return snap
}

// Restore overwrites the tracker from a snapshot, used when resuming from a
// persisted cursor.
func (t *Tracker) Restore(snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.Reserve0 != nil {
		t.reserve0 = new(big.Int).Set(snap.Reserve0)
	}
	if snap.Reserve1 != nil {
		t.reserve1 = new(big.Int).Set(snap.Reserve1)
	}
	t.lastBlock = snap.LastBlock
	t.reorgCount = snap.ReorgCount
	t.lastBlockHash = nil
	if snap.LastBlockHash != nil {
		h := *snap.LastBlockHash
		t.lastBlockHash = &h
	}

	t.log.Infof("state restored: block=%d reorg_count=%d", t.lastBlock, t.reorgCount)
}
