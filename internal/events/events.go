// Package events decodes Uniswap V2 Sync logs into reserve observations.
package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReserveObservation is one decoded Sync event. Immutable once decoded; the
// indexer owns it until it is handed to the state tracker.
type ReserveObservation struct {
	Reserve0    *big.Int
	Reserve1    *big.Int
	BlockNumber uint64
	BlockHash   common.Hash
	ParentHash  common.Hash
	TxHash      common.Hash
	LogIndex    uint32
	Timestamp   uint64
}

// DecodeError is returned when a log cannot be decoded as a Sync event.
type DecodeError struct {
	BlockNumber uint64
	TxHash      common.Hash
	Detail      string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode sync event (block=%d tx=%s): %s",
		e.BlockNumber, e.TxHash.Hex(), e.Detail)
}

// SyncTopic returns topic0 of the Sync(uint112,uint112) event.
func SyncTopic() (common.Hash, error) {
	pairABI, err := PairABI()
	if err != nil {
		return common.Hash{}, err
	}
	return pairABI.Events["Sync"].ID, nil
}

// SyncFilter builds the eth_getLogs query matching Sync events emitted by
// the given pair within [fromBlock, toBlock].
func SyncFilter(pair common.Address, fromBlock, toBlock uint64) (ethereum.FilterQuery, error) {
	topic, err := SyncTopic()
	if err != nil {
		return ethereum.FilterQuery{}, err
	}
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{pair},
		Topics:    [][]common.Hash{{topic}},
	}, nil
}

// DecodeSync decodes a raw log into a ReserveObservation. The block
// timestamp and parent hash are not part of the log itself; callers supply
// them from the corresponding header.
func DecodeSync(log types.Log, parentHash common.Hash, timestamp uint64) (*ReserveObservation, error) {
	pairABI, err := PairABI()
	if err != nil {
		return nil, err
	}

	topic, err := SyncTopic()
	if err != nil {
		return nil, err
	}
	if len(log.Topics) == 0 || log.Topics[0] != topic {
		return nil, &DecodeError{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash,
			Detail:      "topic0 is not the Sync event signature",
		}
	}

	values, err := pairABI.Events["Sync"].Inputs.Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash,
			Detail:      fmt.Sprintf("abi unpack: %v", err),
		}
	}
	if len(values) != 2 {
		return nil, &DecodeError{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash,
			Detail:      fmt.Sprintf("expected 2 values, got %d", len(values)),
		}
	}

	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, &DecodeError{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash,
			Detail:      "reserve values are not integers",
		}
	}

	return &ReserveObservation{
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		ParentHash:  parentHash,
		TxHash:      log.TxHash,
		LogIndex:    uint32(log.Index),
		Timestamp:   timestamp,
	}, nil
}
