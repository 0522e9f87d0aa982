package db

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/ethereum/go-ethereum/common"

	"plasma/block/checkpoints"
	"plasma/block/transactions"
	"plasma/keys"
	"plasma/types"
)

// SaveTxBlock 保存交易区块原文（经写队列落盘）
func (manager *Manager) SaveTxBlock(blockNumber uint64, bl *transactions.Block) error {
	raw, err := bl.Marshal()
	if err != nil {
		return err
	}
	manager.Logger.Debug("[db] saving tx block %d (%d txs)", blockNumber, bl.NumberOfTX())
	return manager.EnqueueSet(keys.KeyTxBlock(blockNumber), raw)
}

// LoadTxBlock 读取交易区块并重新构建
func (manager *Manager) LoadTxBlock(blockNumber uint64, depth int) (*transactions.Block, error) {
	raw, err := manager.getBlock(keys.KeyTxBlock(blockNumber))
	if err != nil {
		return nil, fmt.Errorf("tx block %d: %w", blockNumber, err)
	}
	bl := transactions.NewBlock(depth)
	if err := bl.Unmarshal(raw); err != nil {
		return nil, err
	}
	if _, err := bl.Build(); err != nil {
		return nil, err
	}
	return bl, nil
}

// SaveCheckpointBlock 保存已构建的 checkpoint 区块，按根索引
func (manager *Manager) SaveCheckpointBlock(bl *checkpoints.Block) error {
	if !bl.IsBuilt() {
		return fmt.Errorf("%w: checkpoint block is not built", types.ErrPreconditionFailed)
	}
	raw, err := bl.Marshal()
	if err != nil {
		return err
	}
	return manager.EnqueueSet(keys.KeyCheckpointBlock(bl.Hash().Hex()), raw)
}

// LoadCheckpointBlock 按根读取 checkpoint 区块并校验根一致
func (manager *Manager) LoadCheckpointBlock(root common.Hash, depth int) (*checkpoints.Block, error) {
	raw, err := manager.getBlock(keys.KeyCheckpointBlock(root.Hex()))
	if err != nil {
		return nil, fmt.Errorf("checkpoint block %s: %w", root.Hex(), err)
	}
	bl := checkpoints.NewBlock(depth)
	if err := bl.Unmarshal(raw); err != nil {
		return nil, err
	}
	built, err := bl.Build()
	if err != nil {
		return nil, err
	}
	if built != root {
		return nil, fmt.Errorf("%w: checkpoint block rebuilt to %s, want %s", types.ErrInvalidEncoding, built.Hex(), root.Hex())
	}
	return bl, nil
}

func (manager *Manager) getBlock(key string) ([]byte, error) {
	raw, err := manager.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.ErrAbsent
	}
	return raw, err
}
