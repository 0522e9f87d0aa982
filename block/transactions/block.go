// Package transactions 账本区块：每个资产至多一笔交易，叶子为交易内容哈希
package transactions

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"plasma/block"
	"plasma/transaction"
	"plasma/types"
)

// TxBlock 账本区块需要实现的方法
type TxBlock interface {
	block.Block
	AddTx(tx *transaction.Tx) error
	GetTx(uid *uint256.Int) *transaction.Tx
	NumberOfTX() int64
}

// Block 交易区块
type Block struct {
	*block.Builder

	mu  sync.RWMutex
	txs map[uint256.Int]*transaction.Tx
}

// NewBlock 创建交易区块
func NewBlock(depth int) *Block {
	return &Block{
		Builder: block.NewBuilder(depth),
		txs:     make(map[uint256.Int]*transaction.Tx),
	}
}

// Hash 区块根
func (bl *Block) Hash() common.Hash {
	return bl.Root()
}

// AddTx 加入一笔已签名交易
func (bl *Block) AddTx(tx *transaction.Tx) error {
	if tx == nil || tx.UID == nil {
		return fmt.Errorf("%w: empty transaction", types.ErrPreconditionFailed)
	}
	if err := bl.AddEntry(tx.UID, tx.Hash()); err != nil {
		return err
	}
	bl.mu.Lock()
	bl.txs[*tx.UID] = tx
	bl.mu.Unlock()
	return nil
}

// GetTx 按 uid 取交易
func (bl *Block) GetTx(uid *uint256.Int) *transaction.Tx {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	return bl.txs[*uid]
}

// NumberOfTX 交易数量
func (bl *Block) NumberOfTX() int64 {
	return int64(bl.Len())
}

// CreateProof uid 的包含证明
func (bl *Block) CreateProof(uid *uint256.Int) []byte {
	return bl.Proof(uid)
}

// Marshal 按 uid 升序编码完整交易
func (bl *Block) Marshal() ([]byte, error) {
	entries := bl.Entries()
	bl.mu.RLock()
	txs := make([]*transaction.Tx, 0, len(entries))
	for _, e := range entries {
		txs = append(txs, bl.txs[*e.UID])
	}
	bl.mu.RUnlock()

	raw, err := rlp.EncodeToBytes(txs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transactions: %w", err)
	}
	return raw, nil
}

// Unmarshal 解码交易列表并整体载入
// 条目与交易表一起在副本上准备，任一笔失败（格式、重复 uid）时区块保持不变
func (bl *Block) Unmarshal(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	if bl.IsBuilt() {
		return block.ErrAlreadyBuilt
	}
	var txs []*transaction.Tx
	if err := rlp.DecodeBytes(raw, &txs); err != nil {
		return fmt.Errorf("%w: failed to decode transactions: %v", types.ErrInvalidEncoding, err)
	}

	bl.mu.Lock()
	defer bl.mu.Unlock()

	entries := make([]block.Entry, 0, len(txs))
	staged := make(map[uint256.Int]*transaction.Tx, len(bl.txs)+len(txs))
	for uid, tx := range bl.txs {
		staged[uid] = tx
	}
	for _, tx := range txs {
		if tx == nil || tx.UID == nil || tx.Amount == nil {
			return fmt.Errorf("%w: transaction without uid or amount", types.ErrInvalidEncoding)
		}
		entries = append(entries, block.Entry{UID: tx.UID, Value: tx.Hash()})
		staged[*tx.UID] = tx
	}
	if err := bl.Load(entries); err != nil {
		return fmt.Errorf("failed to add transaction in the block: %w", err)
	}
	bl.txs = staged
	return nil
}

var _ TxBlock = (*Block)(nil)
