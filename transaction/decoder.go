package transaction

import (
	"fmt"

	"plasma/types"
)

// Decoder 默认的 TransactionDecoder 实现：RLP + secp256k1 签名恢复
type Decoder struct{}

// NewDecoder 创建解码器
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode 把原始字节解码为结算层使用的交易视图
// 格式错误或签名无法恢复都视为调用方的前置条件失败
func (Decoder) Decode(raw []byte) (*types.DecodedTx, error) {
	tx, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	signer, err := tx.Signer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPreconditionFailed, err)
	}
	return &types.DecodedTx{
		UID:       *tx.UID,
		Amount:    tx.Amount,
		Nonce:     tx.Nonce,
		PrevBlock: tx.PrevBlock,
		Signer:    signer,
		NewOwner:  tx.NewOwner,
		Hash:      tx.Hash(),
		Raw:       append([]byte(nil), raw...),
	}, nil
}
