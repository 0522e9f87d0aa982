package settlement

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"plasma/types"
)

// MemoryLedger 内存中的账本根序列，测试和单进程演示使用
type MemoryLedger struct {
	mu     sync.RWMutex
	roots  map[uint64]common.Hash
	latest uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{roots: make(map[uint64]common.Hash)}
}

// Append 追加区块根，编号必须严格递增
func (l *MemoryLedger) Append(blockNumber uint64, root common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.roots[blockNumber]; ok {
		return fmt.Errorf("%w: block %d already committed", types.ErrDuplicateEntry, blockNumber)
	}
	if len(l.roots) > 0 && blockNumber <= l.latest {
		return fmt.Errorf("%w: block %d is not after %d", types.ErrPreconditionFailed, blockNumber, l.latest)
	}
	l.roots[blockNumber] = root
	l.latest = blockNumber
	return nil
}

func (l *MemoryLedger) RootAt(blockNumber uint64) (common.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	root, ok := l.roots[blockNumber]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: block %d", types.ErrAbsent, blockNumber)
	}
	return root, nil
}
