package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v2"
	"github.com/ethereum/go-ethereum/common"

	"plasma/keys"
	"plasma/types"
	"plasma/utils"
)

// loadRootIndex 启动时重建区块号 bitmap
func (manager *Manager) loadRootIndex() error {
	prefix := keys.KeyLedgerRootPrefix()
	return manager.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := string(it.Item().Key())
			n, err := strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupted ledger key %q: %w", key, err)
			}
			manager.rootIndex.Add(n)
			if n > manager.latest {
				manager.latest = n
			}
		}
		return nil
	})
}

// AppendRoot 登记账本区块根；区块号必须严格递增，已登记的根不可改写
func (manager *Manager) AppendRoot(blockNumber uint64, root common.Hash) error {
	manager.rootMu.Lock()
	defer manager.rootMu.Unlock()

	if manager.rootIndex.Contains(blockNumber) {
		return fmt.Errorf("%w: block %d already committed", types.ErrDuplicateEntry, blockNumber)
	}
	if !manager.rootIndex.IsEmpty() && blockNumber <= manager.latest {
		return fmt.Errorf("%w: block %d is not after %d", types.ErrPreconditionFailed, blockNumber, manager.latest)
	}

	err := manager.update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keys.KeyLedgerRoot(blockNumber)), root.Bytes()); err != nil {
			return err
		}
		return txn.Set([]byte(keys.KeyLedgerLatest()), utils.Uint64Bytes(blockNumber))
	})
	if err != nil {
		return fmt.Errorf("append root of block %d: %w", blockNumber, err)
	}
	manager.rootIndex.Add(blockNumber)
	manager.latest = blockNumber
	manager.rootCache.Add(blockNumber, root)
	return nil
}

// RootAt 实现 settlement.BlockLedger
func (manager *Manager) RootAt(blockNumber uint64) (common.Hash, error) {
	if v, ok := manager.rootCache.Get(blockNumber); ok {
		return v.(common.Hash), nil
	}
	manager.rootMu.RLock()
	known := manager.rootIndex.Contains(blockNumber)
	manager.rootMu.RUnlock()
	if !known {
		return common.Hash{}, fmt.Errorf("%w: block %d", types.ErrAbsent, blockNumber)
	}

	raw, err := manager.Get(keys.KeyLedgerRoot(blockNumber))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return common.Hash{}, fmt.Errorf("%w: block %d", types.ErrAbsent, blockNumber)
	}
	if err != nil {
		return common.Hash{}, err
	}
	root := common.BytesToHash(raw)
	manager.rootCache.Add(blockNumber, root)
	return root, nil
}

// LatestBlock 最新登记的区块号；ok=false 表示账本为空
func (manager *Manager) LatestBlock() (uint64, bool) {
	manager.rootMu.RLock()
	defer manager.rootMu.RUnlock()
	if manager.rootIndex.IsEmpty() {
		return 0, false
	}
	return manager.latest, true
}

// BlockNumbers 已登记的全部区块号（升序）
func (manager *Manager) BlockNumbers() []uint64 {
	manager.rootMu.RLock()
	defer manager.rootMu.RUnlock()
	return manager.rootIndex.ToArray()
}
