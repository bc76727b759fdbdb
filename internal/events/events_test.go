package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncLogData ABI-encodes two uint112 reserves the way the pair contract
// emits them: two 32-byte big-endian words.
func syncLogData(t *testing.T, reserve0, reserve1 *big.Int) []byte {
	t.Helper()
	data := make([]byte, 64)
	reserve0.FillBytes(data[:32])
	reserve1.FillBytes(data[32:])
	return data
}

func TestSyncTopic(t *testing.T) {
	topic, err := SyncTopic()
	require.NoError(t, err)
	// keccak256("Sync(uint112,uint112)")
	assert.Equal(t,
		"0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1",
		topic.Hex(),
	)
}

func TestSyncFilter(t *testing.T) {
	pair := common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852")

	query, err := SyncFilter(pair, 100, 110)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), query.FromBlock.Uint64())
	assert.Equal(t, uint64(110), query.ToBlock.Uint64())
	require.Len(t, query.Addresses, 1)
	assert.Equal(t, pair, query.Addresses[0])
	require.Len(t, query.Topics, 1)
	require.Len(t, query.Topics[0], 1)
}

func TestDecodeSync(t *testing.T) {
	topic, err := SyncTopic()
	require.NoError(t, err)

	reserve0 := new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	reserve1 := new(big.Int).Mul(big.NewInt(125_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil))

	log := types.Log{
		Address:     common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"),
		Topics:      []common.Hash{topic},
		Data:        syncLogData(t, reserve0, reserve1),
		BlockNumber: 19_000_000,
		BlockHash:   common.HexToHash("0xaa"),
		TxHash:      common.HexToHash("0xbb"),
		Index:       3,
	}
	parent := common.HexToHash("0x99")

	obs, err := DecodeSync(log, parent, 1_706_745_600)
	require.NoError(t, err)

	assert.Zero(t, obs.Reserve0.Cmp(reserve0))
	assert.Zero(t, obs.Reserve1.Cmp(reserve1))
	assert.Equal(t, uint64(19_000_000), obs.BlockNumber)
	assert.Equal(t, log.BlockHash, obs.BlockHash)
	assert.Equal(t, parent, obs.ParentHash)
	assert.Equal(t, log.TxHash, obs.TxHash)
	assert.Equal(t, uint32(3), obs.LogIndex)
	assert.Equal(t, uint64(1_706_745_600), obs.Timestamp)
}

func TestDecodeSync_WrongTopic(t *testing.T) {
	log := types.Log{
		Topics:      []common.Hash{common.HexToHash("0xdead")},
		BlockNumber: 5,
		TxHash:      common.HexToHash("0x01"),
	}

	var decodeErr *DecodeError
	_, err := DecodeSync(log, common.Hash{}, 0)
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, uint64(5), decodeErr.BlockNumber)
}

func TestDecodeSync_MalformedData(t *testing.T) {
	topic, err := SyncTopic()
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{topic},
		Data:   []byte{0x01, 0x02},
	}

	var decodeErr *DecodeError
	_, err = DecodeSync(log, common.Hash{}, 0)
	require.ErrorAs(t, err, &decodeErr)
}
