package reorg

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pairstream/pairstream/internal/logger"
	"github.com/pairstream/pairstream/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChain serves a synthetic chain out of a map and counts fetches.
type fakeChain struct {
	blocks     map[uint64]*rpc.BlockRecord
	fetchCount int
	failAll    bool
}

func (f *fakeChain) GetBlock(_ context.Context, blockNum uint64) (*rpc.BlockRecord, error) {
	f.fetchCount++
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	block, ok := f.blocks[blockNum]
	if !ok {
		return nil, ethereum.NotFound
	}
	rec := *block
	return &rec, nil
}

func (f *fakeChain) GetLatestBlockNumber(context.Context) (uint64, error) {
	var tip uint64
	for n := range f.blocks {
		if n > tip {
			tip = n
		}
	}
	return tip, nil
}

func (f *fakeChain) GetLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeChain) BatchGetBlocks(ctx context.Context, blockNums []uint64) ([]*rpc.BlockRecord, error) {
	records := make([]*rpc.BlockRecord, 0, len(blockNums))
	for _, n := range blockNums {
		rec, err := f.GetBlock(ctx, n)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func oldHash(n uint64) common.Hash {
	return common.HexToHash(fmt.Sprintf("0xaa%060x", n))
}

func newHash(n uint64) common.Hash {
	return common.HexToHash(fmt.Sprintf("0xbb%060x", n))
}

// buildChain creates a consistent chain of length+1 blocks [0, length].
func buildChain(length uint64) *fakeChain {
	blocks := make(map[uint64]*rpc.BlockRecord, length+1)
	for n := uint64(0); n <= length; n++ {
		blocks[n] = &rpc.BlockRecord{
			Number:     n,
			Hash:       oldHash(n),
			ParentHash: oldHash(n - 1),
			Timestamp:  1_700_000_000 + n*12,
		}
	}
	blocks[0].ParentHash = common.Hash{}
	return &fakeChain{blocks: blocks}
}

// divergeFrom replaces every block from firstDivergent upward with a new
// hash whose parent link no longer matches the served predecessor.
func (f *fakeChain) divergeFrom(firstDivergent, newTip uint64) {
	for n := firstDivergent; n <= newTip; n++ {
		f.blocks[n] = &rpc.BlockRecord{
			Number:     n,
			Hash:       newHash(n),
			ParentHash: oldHash(n - 1),
			Timestamp:  1_700_000_000 + n*12,
		}
	}
}

func trackTip(d *Detector, chain *fakeChain, number uint64) {
	d.SetLastBlock(chain.blocks[number])
}

func TestDetector_NoHistory(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	chain := buildChain(10)

	forkPoint, detected, err := d.DetectReorg(context.Background(), chain, 10)
	require.NoError(t, err)
	assert.False(t, detected)
	assert.Zero(t, forkPoint)
	assert.Zero(t, chain.fetchCount, "nothing to verify without history")
}

func TestDetector_FastPath_Continuous(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	chain := buildChain(100)
	trackTip(d, chain, 99)

	_, detected, err := d.DetectReorg(context.Background(), chain, 100)
	require.NoError(t, err)
	assert.False(t, detected)
	assert.Equal(t, 1, chain.fetchCount, "continuous next block needs a single fetch")
	assert.Equal(t, uint64(0), d.ReorgCount())
}

func TestDetector_FastPath_Reorg(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	chain := buildChain(100)
	trackTip(d, chain, 99)

	// Replace block 100 with one that does not descend from our tip.
	chain.blocks[100] = &rpc.BlockRecord{
		Number:     100,
		Hash:       newHash(100),
		ParentHash: newHash(99),
	}

	forkPoint, detected, err := d.DetectReorg(context.Background(), chain, 100)
	require.NoError(t, err)
	assert.True(t, detected)
	assert.Equal(t, uint64(98), forkPoint, "single-block reorg forks one below the tip")
	assert.Equal(t, 1, chain.fetchCount)
	assert.Equal(t, uint64(1), d.ReorgCount())
}

func TestDetector_FastPath_ReorgAtGenesis(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	chain := buildChain(1)
	trackTip(d, chain, 0)

	chain.blocks[1] = &rpc.BlockRecord{
		Number:     1,
		Hash:       newHash(1),
		ParentHash: newHash(0),
	}

	forkPoint, detected, err := d.DetectReorg(context.Background(), chain, 1)
	require.NoError(t, err)
	assert.True(t, detected)
	assert.Equal(t, uint64(0), forkPoint, "fork point saturates at genesis")
}

func TestDetector_SlowPath_GapStillContinuous(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	chain := buildChain(200)
	trackTip(d, chain, 100)

	// A gap of unprocessed blocks is not a reorg as long as our tip hash
	// is still canonical.
	_, detected, err := d.DetectReorg(context.Background(), chain, 200)
	require.NoError(t, err)
	assert.False(t, detected)
	assert.Equal(t, 1, chain.fetchCount, "only the tracked tip is re-fetched")
}

func TestDetector_SlowPath_ForkPointCorrectness(t *testing.T) {
	tests := []struct {
		name           string
		chainLength    uint64
		trackedTip     uint64
		firstDivergent uint64
	}{
		{name: "shallow reorg", chainLength: 128, trackedTip: 120, firstDivergent: 118},
		{name: "deep reorg", chainLength: 1024, trackedTip: 1000, firstDivergent: 900},
		{name: "reorg below half", chainLength: 512, trackedTip: 500, firstDivergent: 100},
		{name: "everything but genesis replaced", chainLength: 64, trackedTip: 60, firstDivergent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(logger.NewNopLogger())
			chain := buildChain(tt.chainLength)
			trackTip(d, chain, tt.trackedTip)
			chain.divergeFrom(tt.firstDivergent, tt.chainLength)

			forkPoint, detected, err := d.DetectReorg(context.Background(), chain, tt.chainLength)
			require.NoError(t, err)
			require.True(t, detected)
			assert.Equal(t, tt.firstDivergent-1, forkPoint)
			assert.Equal(t, uint64(1), d.ReorgCount())

			// One tip re-fetch plus two fetches per binary search probe.
			maxProbes := bits.Len64(tt.trackedTip) + 1
			assert.LessOrEqual(t, chain.fetchCount, 1+2*maxProbes,
				"fork point search must stay logarithmic")
		})
	}
}

func TestDetector_CountsOncePerDetection(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	chain := buildChain(1024)
	trackTip(d, chain, 1000)
	chain.divergeFrom(500, 1024)

	_, detected, err := d.DetectReorg(context.Background(), chain, 1024)
	require.NoError(t, err)
	require.True(t, detected)
	assert.Equal(t, uint64(1), d.ReorgCount(), "deep search still counts a single reorg")

	// The stale tip is dropped, so a repeated call has nothing to compare.
	_, detected, err = d.DetectReorg(context.Background(), chain, 1024)
	require.NoError(t, err)
	assert.False(t, detected)
	assert.Equal(t, uint64(1), d.ReorgCount())
}

func TestDetector_RPCFailureLeavesStateUntouched(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	chain := buildChain(100)
	trackTip(d, chain, 99)
	chain.failAll = true

	_, detected, err := d.DetectReorg(context.Background(), chain, 100)
	require.Error(t, err)
	assert.False(t, detected)
	assert.Equal(t, uint64(0), d.ReorgCount(), "failed detection must not count")
	require.NotNil(t, d.LastBlock())
	assert.Equal(t, uint64(99), d.LastBlock().Number, "failed detection must not drop the tip")
}

func TestDetector_SetLastBlockCopies(t *testing.T) {
	d := NewDetector(logger.NewNopLogger())
	rec := &rpc.BlockRecord{Number: 5, Hash: oldHash(5)}
	d.SetLastBlock(rec)

	rec.Number = 99
	assert.Equal(t, uint64(5), d.LastBlock().Number)
}
