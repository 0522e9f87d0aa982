// Package transaction 资产交易的 RLP 编码、签名与签名人恢复
package transaction

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"plasma/types"
)

var (
	ErrNoSignature  = errors.New("transaction is not signed")
	ErrBadSignature = errors.New("invalid transaction signature")
)

// Tx 资产转移交易
// PrevBlock 为上一笔同资产交易所在的账本区块号，Nonce 每次转移加一
type Tx struct {
	PrevBlock uint64
	UID       *uint256.Int
	Amount    *big.Int
	NewOwner  common.Address
	Nonce     uint64
	Signature []byte
}

// unsignedTx 参与签名的字段
type unsignedTx struct {
	PrevBlock uint64
	UID       *uint256.Int
	Amount    *big.Int
	NewOwner  common.Address
	Nonce     uint64
}

// NewTx 创建未签名交易
func NewTx(prevBlock uint64, uid *uint256.Int, amount *big.Int, newOwner common.Address, nonce uint64) *Tx {
	return &Tx{
		PrevBlock: prevBlock,
		UID:       new(uint256.Int).Set(uid),
		Amount:    new(big.Int).Set(amount),
		NewOwner:  newOwner,
		Nonce:     nonce,
	}
}

// SignatureHash 签名摘要 keccak(rlp(未签名字段))
func (tx *Tx) SignatureHash() common.Hash {
	raw, err := rlp.EncodeToBytes(&unsignedTx{
		PrevBlock: tx.PrevBlock,
		UID:       tx.UID,
		Amount:    tx.Amount,
		NewOwner:  tx.NewOwner,
		Nonce:     tx.Nonce,
	})
	if err != nil {
		// 字段都是定长/大整数，编码不会失败
		panic(fmt.Sprintf("encode unsigned tx: %v", err))
	}
	return crypto.Keccak256Hash(raw)
}

// Hash 内容哈希 keccak(rlp(含签名的完整交易))，作为账本区块的叶子
func (tx *Tx) Hash() common.Hash {
	raw, err := tx.Encode()
	if err != nil {
		panic(fmt.Sprintf("encode tx: %v", err))
	}
	return crypto.Keccak256Hash(raw)
}

// Sign 用私钥签名，覆盖已有签名
func (tx *Tx) Sign(key *ecdsa.PrivateKey) error {
	h := tx.SignatureHash()
	sig, err := crypto.Sign(h[:], key)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Signer 从签名恢复签名人地址
func (tx *Tx) Signer() (common.Address, error) {
	if len(tx.Signature) == 0 {
		return common.Address{}, ErrNoSignature
	}
	if len(tx.Signature) != crypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	h := tx.SignatureHash()
	pub, err := crypto.SigToPub(h[:], tx.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Encode RLP 编码
func (tx *Tx) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

// Decode 解析 RLP 编码的交易
func Decode(raw []byte) (*Tx, error) {
	var tx Tx
	if err := rlp.DecodeBytes(raw, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidEncoding, err)
	}
	if tx.UID == nil || tx.Amount == nil {
		return nil, fmt.Errorf("%w: missing uid or amount", types.ErrInvalidEncoding)
	}
	return &tx, nil
}
