package store

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is one tracked pair contract with its static token metadata.
type Pool struct {
	ID             int64          `meddler:"id,pk"`
	Address        common.Address `meddler:"address,address"`
	Name           string         `meddler:"name"`
	Token0Address  common.Address `meddler:"token0_address,address"`
	Token0Symbol   string         `meddler:"token0_symbol"`
	Token0Decimals uint8          `meddler:"token0_decimals"`
	Token1Address  common.Address `meddler:"token1_address,address"`
	Token1Symbol   string         `meddler:"token1_symbol"`
	Token1Decimals uint8          `meddler:"token1_decimals"`
	CreatedAt      int64          `meddler:"created_at"`
}

// SyncEvent is one persisted reserve observation.
type SyncEvent struct {
	ID             int64       `meddler:"id,pk"`
	PoolID         int64       `meddler:"pool_id"`
	BlockNumber    uint64      `meddler:"block_number"`
	BlockHash      common.Hash `meddler:"block_hash,hash"`
	BlockTimestamp uint64      `meddler:"block_timestamp"`
	TxHash         common.Hash `meddler:"tx_hash,hash"`
	LogIndex       uint32      `meddler:"log_index"`
	Reserve0       *big.Int    `meddler:"reserve0,bigint"`
	Reserve1       *big.Int    `meddler:"reserve1,bigint"`
	IsConfirmed    bool        `meddler:"is_confirmed"`
	CreatedAt      int64       `meddler:"created_at"`
}

// PricePoint is the derived price row for one sync event.
type PricePoint struct {
	ID             int64       `meddler:"id,pk"`
	PoolID         int64       `meddler:"pool_id"`
	BlockNumber    uint64      `meddler:"block_number"`
	BlockTimestamp uint64      `meddler:"block_timestamp"`
	TxHash         common.Hash `meddler:"tx_hash,hash"`
	LogIndex       uint32      `meddler:"log_index"`
	Price          float64     `meddler:"price"`
	Reserve0Raw    *big.Int    `meddler:"reserve0_raw,bigint"`
	Reserve1Raw    *big.Int    `meddler:"reserve1_raw,bigint"`
	Reserve0Human  float64     `meddler:"reserve0_human"`
	Reserve1Human  float64     `meddler:"reserve1_human"`
	IsConfirmed    bool        `meddler:"is_confirmed"`
	CreatedAt      int64       `meddler:"created_at"`
}

// Cursor is the durable indexing position for a pool, written in the same
// transaction as the batch it describes.
type Cursor struct {
	PoolID               int64        `meddler:"pool_id"`
	LastIndexedBlock     uint64       `meddler:"last_indexed_block"`
	LastBlockHash        *common.Hash `meddler:"last_block_hash,hash"`
	Reserve0             *big.Int     `meddler:"reserve0,bigint"`
	Reserve1             *big.Int     `meddler:"reserve1,bigint"`
	ReorgCount           uint64       `meddler:"reorg_count"`
	TotalEventsProcessed uint64       `meddler:"total_events_processed"`
	LastUpdatedAt        int64        `meddler:"last_updated_at"`
}

// PriceStats aggregates price points over a block-timestamp window.
type PriceStats struct {
	MinPrice float64 `meddler:"min_price"`
	MaxPrice float64 `meddler:"max_price"`
	AvgPrice float64 `meddler:"avg_price"`
	Count    int64   `meddler:"count"`
}
