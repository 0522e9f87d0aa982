package utils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyManager_InitKey(t *testing.T) {
	km := NewKeyManager()
	validKey := "a61a8cb51bb55a9bed37b59a94f7f6ee92b04d211179c84a1147fd30bd8c5192"

	require.NoError(t, km.InitKey(validKey))
	require.NotNil(t, km.PrivateKey())
	assert.Equal(t, validKey, km.GetPrivateKey())
	assert.Equal(t, crypto.PubkeyToAddress(km.PrivateKey().PublicKey), km.Address())

	// 带 0x 前缀得到同一个地址
	other := NewKeyManager()
	require.NoError(t, other.InitKey("0x"+validKey))
	assert.Equal(t, km.Address(), other.Address())

	assert.Error(t, NewKeyManager().InitKey("not-a-key"))
}

func TestKeyManager_Generate(t *testing.T) {
	km := NewKeyManager()
	assert.Equal(t, "", km.GetPrivateKey())
	require.NoError(t, km.Generate())
	assert.NotEqual(t, [20]byte{}, [20]byte(km.Address()))
}

func TestAmount_RoundTrip(t *testing.T) {
	v, err := ParseAmount("1.5")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, v.Cmp(want))
	assert.Equal(t, "1.5", FormatAmount(v))
	assert.Equal(t, "0", FormatAmount(nil))

	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestStripeIndex(t *testing.T) {
	uid := uint256.NewInt(7)
	idx := StripeIndex(uid, 256)
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, 256)
	assert.Equal(t, idx, StripeIndex(uint256.NewInt(7), 256))
	assert.Equal(t, 0, StripeIndex(uid, 1))
}

func TestUIDBytes(t *testing.T) {
	b := UIDBytes(uint256.NewInt(0x0102))
	require.Len(t, b, 32)
	assert.Equal(t, byte(0x01), b[30])
	assert.Equal(t, byte(0x02), b[31])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 9}, Uint64Bytes(9))
}
