// Package checkpoints checkpoint 区块：记录每个资产在某一时刻的 nonce
package checkpoints

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"plasma/block"
	"plasma/types"
)

// CheckpointBlock 标准 checkpoint 区块需要实现的方法
type CheckpointBlock interface {
	block.Block
	AddCheckpoint(uid *uint256.Int, nonce uint64) error
	NumberOfCheckpoints() int64
	GetNonce(uid *uint256.Int) (uint64, bool)
}

// Block checkpoint 区块
type Block struct {
	*block.Builder
}

// NewBlock 在内存中创建 checkpoint 区块，depth<=0 时使用最大深度
func NewBlock(depth int) *Block {
	return &Block{Builder: block.NewBuilder(depth)}
}

// Hash 区块根，未构建时为零哈希
func (bl *Block) Hash() common.Hash {
	return bl.Root()
}

// AddCheckpoint 记录 uid 的 nonce
func (bl *Block) AddCheckpoint(uid *uint256.Int, nonce uint64) error {
	return bl.AddEntry(uid, types.NonceLeaf(nonce))
}

// NumberOfCheckpoints 区块中的 checkpoint 数量
func (bl *Block) NumberOfCheckpoints() int64 {
	return int64(bl.Len())
}

// GetNonce 返回 uid 记录的 nonce，未构建或不存在时 ok=false
func (bl *Block) GetNonce(uid *uint256.Int) (uint64, bool) {
	if !bl.IsBuilt() {
		return 0, false
	}
	v, ok := bl.Value(uid)
	if !ok {
		return 0, false
	}
	return v.Big().Uint64(), true
}

// Marshal 规范编码
func (bl *Block) Marshal() ([]byte, error) {
	return bl.Serialize()
}

// Unmarshal 解码并回放
func (bl *Block) Unmarshal(raw []byte) error {
	return bl.Deserialize(raw)
}

// CreateProof uid 的包含证明
func (bl *Block) CreateProof(uid *uint256.Int) []byte {
	return bl.Proof(uid)
}

var _ CheckpointBlock = (*Block)(nil)
