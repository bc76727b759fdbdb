package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pairstream/pairstream/internal/config"
)

// BlockRecord is the minimal view of a block the indexer cares about:
// enough to follow the canonical chain and to detect when it forks.
type BlockRecord struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
}

// ChainReader abstracts chain access so the reorg detector and indexer
// can be tested against synthetic chains.
type ChainReader interface {
	// GetBlock retrieves the block record for a specific block number.
	GetBlock(ctx context.Context, blockNum uint64) (*BlockRecord, error)

	// GetLatestBlockNumber retrieves the current chain tip height.
	GetLatestBlockNumber(ctx context.Context) (uint64, error)

	// GetLogs retrieves logs matching the given filter query.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// BatchGetBlocks retrieves block records for the given block numbers.
	BatchGetBlocks(ctx context.Context, blockNums []uint64) ([]*BlockRecord, error)
}

// Compile-time check that Client satisfies ChainReader.
var _ ChainReader = (*Client)(nil)

// Client wraps the Ethereum RPC client with retrying convenience methods.
type Client struct {
	eth   *ethclient.Client
	rpc   *rpc.Client
	retry *config.RetryConfig
}

// NewClient creates a new RPC client connected to the given endpoint.
func NewClient(ctx context.Context, cfg *config.RPCConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, &RPCError{Method: "dial", Err: err}
	}

	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		retry: cfg.Retry,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// GetBlock retrieves a block record for a specific block number.
func (c *Client) GetBlock(ctx context.Context, blockNum uint64) (*BlockRecord, error) {
	var header *types.Header

	err := c.call(ctx, "eth_getBlockByNumber", func() error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
		return err
	})
	if err != nil {
		return nil, err
	}

	return headerToRecord(header), nil
}

// GetLatestBlockNumber retrieves the current chain tip height.
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64

	err := c.call(ctx, "eth_blockNumber", func() error {
		var err error
		number, err = c.eth.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	return number, nil
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log

	err := c.call(ctx, "eth_getLogs", func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	return logs, nil
}

// BatchGetBlocks retrieves records for multiple block numbers in a single
// batch call, chunked to stay under provider batch limits.
func (c *Client) BatchGetBlocks(ctx context.Context, blockNums []uint64) ([]*BlockRecord, error) {
	const maxBatch = 100
	var allRecords []*BlockRecord

	for i := 0; i < len(blockNums); i += maxBatch {
		end := min(i+maxBatch, len(blockNums))
		chunk := blockNums[i:end]

		batch := make([]rpc.BatchElem, len(chunk))
		results := make([]*types.Header, len(chunk))

		for j, blockNum := range chunk {
			batch[j] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{toBlockNumArg(blockNum), false}, // false = don't include transactions
				Result: &results[j],
			}
		}

		err := c.call(ctx, "eth_getBlockByNumber", func() error {
			if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
				return err
			}
			for _, elem := range batch {
				if elem.Error != nil {
					return elem.Error
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, header := range results {
			if header == nil {
				return nil, &RPCError{Method: "eth_getBlockByNumber", Err: ethereum.NotFound}
			}
			allRecords = append(allRecords, headerToRecord(header))
		}
	}

	return allRecords, nil
}

// call runs an RPC operation with retries, recording metrics and wrapping
// the terminal failure as an RPCError.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	RPCMethodInc(method)
	start := time.Now()

	err := retryWithBackoff(ctx, c.retry, method, fn)
	RPCMethodDuration(method, time.Since(start))

	if err != nil {
		RPCMethodError(method, errorType(err))
		return &RPCError{Method: method, Err: err}
	}

	return nil
}

func headerToRecord(header *types.Header) *BlockRecord {
	return &BlockRecord{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  header.Time,
	}
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
