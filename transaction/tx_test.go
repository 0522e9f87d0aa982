package transaction

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plasma/types"
)

func TestTx_SignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	tx := NewTx(10, uint256.NewInt(7), big.NewInt(1000), common.HexToAddress("0xbeef"), 4)
	_, err = tx.Signer()
	assert.ErrorIs(t, err, ErrNoSignature)

	require.NoError(t, tx.Sign(key))
	signer, err := tx.Signer()
	require.NoError(t, err)
	assert.Equal(t, owner, signer)
}

func TestTx_EncodeDecodeKeepsHash(t *testing.T) {
	key, _ := crypto.GenerateKey()
	tx := NewTx(3, uint256.NewInt(42), big.NewInt(5), common.HexToAddress("0x01"), 9)
	require.NoError(t, tx.Sign(key))

	raw, err := tx.Encode()
	require.NoError(t, err)
	back, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), back.Hash())
	assert.Equal(t, tx.SignatureHash(), back.SignatureHash())

	// 签名不同，内容哈希不同；签名摘要相同
	other, _ := crypto.GenerateKey()
	require.NoError(t, back.Sign(other))
	assert.NotEqual(t, tx.Hash(), back.Hash())
	assert.Equal(t, tx.SignatureHash(), back.SignatureHash())
}

func TestDecoder_Decode(t *testing.T) {
	key, _ := crypto.GenerateKey()
	tx := NewTx(11, uint256.NewInt(7), big.NewInt(1), common.HexToAddress("0xca"), 4)
	require.NoError(t, tx.Sign(key))
	raw, _ := tx.Encode()

	d, err := NewDecoder().Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, *uint256.NewInt(7), d.UID)
	assert.Equal(t, uint64(4), d.Nonce)
	assert.Equal(t, uint64(11), d.PrevBlock)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), d.Signer)
	assert.Equal(t, common.HexToAddress("0xca"), d.NewOwner)
	assert.Equal(t, tx.Hash(), d.Hash)
}

func TestDecoder_Malformed(t *testing.T) {
	_, err := NewDecoder().Decode([]byte{0x01, 0x02})
	assert.True(t, errors.Is(err, types.ErrInvalidEncoding))

	unsigned := NewTx(1, uint256.NewInt(1), big.NewInt(1), common.Address{}, 1)
	raw, _ := unsigned.Encode()
	_, err = NewDecoder().Decode(raw)
	assert.ErrorIs(t, err, types.ErrPreconditionFailed)
}
