package checkpoints

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plasma/merkle"
	"plasma/types"
)

func TestCheckpointBlock_Lifecycle(t *testing.T) {
	bl := NewBlock(0)
	require.NoError(t, bl.AddCheckpoint(uint256.NewInt(7), 4))
	require.NoError(t, bl.AddCheckpoint(uint256.NewInt(8), 1))
	assert.Equal(t, int64(2), bl.NumberOfCheckpoints())

	_, ok := bl.GetNonce(uint256.NewInt(7))
	assert.False(t, ok, "nonce is not readable before build")

	root, err := bl.Build()
	require.NoError(t, err)
	assert.Equal(t, root, bl.Hash())

	nonce, ok := bl.GetNonce(uint256.NewInt(7))
	require.True(t, ok)
	assert.Equal(t, uint64(4), nonce)

	proof := bl.CreateProof(uint256.NewInt(7))
	assert.True(t, merkle.NewVerifier(0).Verify(types.NonceLeaf(4), uint256.NewInt(7), root, proof))

	assert.ErrorIs(t, bl.AddCheckpoint(uint256.NewInt(9), 1), types.ErrAlreadyBuilt)
}

func TestCheckpointBlock_MarshalUnmarshal(t *testing.T) {
	bl := NewBlock(0)
	require.NoError(t, bl.AddCheckpoint(uint256.NewInt(3), 10))
	require.NoError(t, bl.AddCheckpoint(uint256.NewInt(1), 20))
	raw, err := bl.Marshal()
	require.NoError(t, err)

	restored := NewBlock(0)
	require.NoError(t, restored.Unmarshal(raw))
	assert.False(t, restored.IsBuilt())

	r1, _ := bl.Build()
	r2, _ := restored.Build()
	assert.Equal(t, r1, r2)
}
