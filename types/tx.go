package types

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DecodedTx 解码后的资产交易，字段对应 TransactionDecoder 的输出
type DecodedTx struct {
	UID       uint256.Int
	Amount    *big.Int
	Nonce     uint64
	PrevBlock uint64
	Signer    common.Address
	NewOwner  common.Address
	Hash      common.Hash // 内容哈希，即账本区块中的叶子
	Raw       []byte
}

// SameAsset 资产 id 与金额都一致
func (tx *DecodedTx) SameAsset(other *DecodedTx) bool {
	if tx.UID != other.UID {
		return false
	}
	if tx.Amount == nil || other.Amount == nil {
		return tx.Amount == other.Amount
	}
	return tx.Amount.Cmp(other.Amount) == 0
}

// Continues 判断 next 是否在 tx 之后接续保管：同一资产，签名人是上一笔的新所有者，nonce 连续
func (tx *DecodedTx) Continues(next *DecodedTx) bool {
	n, ok := NextNonce(tx.Nonce)
	return ok && tx.SameAsset(next) &&
		tx.NewOwner == next.Signer &&
		next.Nonce == n
}

// NextNonce nonce 的后继；已到最大值时没有后继
func NextNonce(nonce uint64) (uint64, bool) {
	if nonce == math.MaxUint64 {
		return 0, false
	}
	return nonce + 1, true
}

// NonceLeaf checkpoint 中记录 nonce 的叶子编码（32 字节大端）
func NonceLeaf(nonce uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(nonce))
}
