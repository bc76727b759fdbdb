package state

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// snapshotFile is the JSON layout of the on-disk cursor snapshot. Readers
// must tolerate files written before the hash and reorg fields existed.
type snapshotFile struct {
	WethReserve   string  `json:"weth_reserve"`
	UsdtReserve   string  `json:"usdt_reserve"`
	LastBlock     uint64  `json:"last_block"`
	LastBlockHash *string `json:"last_block_hash"`
	ReorgCount    uint64  `json:"reorg_count"`
}

// SaveSnapshot writes the current cursor to a JSON file for crash recovery
// outside the database.
func (t *Tracker) SaveSnapshot(path string) error {
	snap := t.Snapshot()

	file := snapshotFile{
		WethReserve: snap.Reserve0.String(),
		UsdtReserve: snap.Reserve1.String(),
		LastBlock:   snap.LastBlock,
		ReorgCount:  snap.ReorgCount,
	}
	if snap.LastBlockHash != nil {
		hex := snap.LastBlockHash.Hex()
		file.LastBlockHash = &hex
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state snapshot: %w", err)
	}

	t.log.Infof("state snapshot saved to %s (block=%d)", path, snap.LastBlock)
	return nil
}

// LoadSnapshot reads a cursor snapshot back into the tracker. A missing file
// leaves the tracker empty and is not an error.
func (t *Tracker) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.log.Infof("no state snapshot at %s, starting fresh", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse state snapshot: %w", err)
	}

	snap := Snapshot{
		LastBlock:  file.LastBlock,
		ReorgCount: file.ReorgCount,
	}

	snap.Reserve0, err = parseReserve(file.WethReserve)
	if err != nil {
		return fmt.Errorf("invalid weth_reserve in snapshot: %w", err)
	}
	snap.Reserve1, err = parseReserve(file.UsdtReserve)
	if err != nil {
		return fmt.Errorf("invalid usdt_reserve in snapshot: %w", err)
	}
	if file.LastBlockHash != nil {
		h := common.HexToHash(*file.LastBlockHash)
		snap.LastBlockHash = &h
	}

	t.Restore(snap)
	return nil
}

func parseReserve(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	return v, nil
}
