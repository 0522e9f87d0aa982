package block

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plasma/merkle"
	"plasma/types"
)

func val(n uint64) common.Hash {
	return types.NonceLeaf(n)
}

func TestBuilder_RootIndependentOfInsertOrder(t *testing.T) {
	ids := []uint64{1, 5, 9, 1000, 77, 3}
	build := func(order []uint64) common.Hash {
		b := NewBuilder(0)
		for _, id := range order {
			require.NoError(t, b.AddEntry(uint256.NewInt(id), val(id*10)))
		}
		root, err := b.Build()
		require.NoError(t, err)
		return root
	}

	expected := build(ids)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		shuffled := append([]uint64(nil), ids...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, expected, build(shuffled))
	}
}

func TestBuilder_BeforeAndAfterBuild(t *testing.T) {
	b := NewBuilder(0)
	uid := uint256.NewInt(7)
	require.NoError(t, b.AddEntry(uid, val(4)))

	assert.Equal(t, common.Hash{}, b.Root())
	assert.Nil(t, b.Proof(uid))
	assert.False(t, b.IsBuilt())

	root, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, root, b.Root())
	assert.True(t, b.IsBuilt())

	// 构建后不可再写入，树不变
	err = b.AddEntry(uint256.NewInt(8), val(1))
	assert.ErrorIs(t, err, types.ErrAlreadyBuilt)
	assert.Equal(t, root, b.Root())
	assert.Equal(t, 1, b.Len())

	_, err = b.Build()
	assert.ErrorIs(t, err, types.ErrAlreadyBuilt)
}

func TestBuilder_DuplicateEntry(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.AddEntry(uint256.NewInt(1), val(1)))
	err := b.AddEntry(uint256.NewInt(1), val(2))
	assert.ErrorIs(t, err, types.ErrDuplicateEntry)
	v, ok := b.Value(uint256.NewInt(1))
	assert.True(t, ok)
	assert.Equal(t, val(1), v)
}

func TestBuilder_ProofsVerify(t *testing.T) {
	b := NewBuilder(0)
	for i := uint64(0); i < 50; i++ {
		require.NoError(t, b.AddEntry(uint256.NewInt(i*i), val(i)))
	}
	root, err := b.Build()
	require.NoError(t, err)

	v := merkle.NewVerifier(b.Depth())
	for i := uint64(0); i < 50; i++ {
		uid := uint256.NewInt(i * i)
		proof := b.Proof(uid)
		require.NotNil(t, proof)
		assert.True(t, v.Verify(val(i), uid, root, proof))
	}
	// 从未插入的 id 拿不到证明
	assert.Nil(t, b.Proof(uint256.NewInt(2)))
}

func TestBuilder_SerializeRoundTrip(t *testing.T) {
	a := NewBuilder(0)
	b := NewBuilder(0)
	for _, id := range []uint64{9, 2, 5} {
		require.NoError(t, a.AddEntry(uint256.NewInt(id), val(id)))
	}
	for _, id := range []uint64{5, 9, 2} {
		require.NoError(t, b.AddEntry(uint256.NewInt(id), val(id)))
	}
	rawA, err := a.Serialize()
	require.NoError(t, err)
	rawB, err := b.Serialize()
	require.NoError(t, err)
	// 规范编码与插入顺序无关
	assert.Equal(t, rawA, rawB)

	c := NewBuilder(0)
	require.NoError(t, c.Deserialize(rawA))
	assert.False(t, c.IsBuilt())
	assert.Equal(t, a.Entries(), c.Entries())

	rootA, _ := a.Build()
	rootC, _ := c.Build()
	assert.Equal(t, rootA, rootC)
}

func TestBuilder_DeserializeAbortsOnDuplicate(t *testing.T) {
	src := NewBuilder(0)
	require.NoError(t, src.AddEntry(uint256.NewInt(1), val(1)))
	require.NoError(t, src.AddEntry(uint256.NewInt(2), val(2)))
	raw, err := src.Serialize()
	require.NoError(t, err)

	dst := NewBuilder(0)
	require.NoError(t, dst.AddEntry(uint256.NewInt(2), val(99)))
	err = dst.Deserialize(raw)
	assert.ErrorIs(t, err, types.ErrDuplicateEntry)
	// uid=1 也没有被写入
	assert.Equal(t, 1, dst.Len())
}

func TestBuilder_DeserializeInvalid(t *testing.T) {
	b := NewBuilder(0)
	err := b.Deserialize([]byte{0xde, 0xad})
	assert.ErrorIs(t, err, types.ErrInvalidEncoding)
	assert.Equal(t, 0, b.Len())
	assert.NoError(t, b.Deserialize(nil))
}

func TestBuilder_ConcurrentAddAndBuild(t *testing.T) {
	b := NewBuilder(0)
	var wg sync.WaitGroup
	var builds int32
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = b.AddEntry(uint256.NewInt(uint64(w*1000+i)), val(uint64(i)))
			}
			if _, err := b.Build(); err == nil {
				atomic.AddInt32(&builds, 1)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds)
	// 构建后的树覆盖所有已接受的条目
	root := b.Root()
	v := merkle.NewVerifier(b.Depth())
	for _, e := range b.Entries() {
		assert.True(t, v.Verify(e.Value, e.UID, root, b.Proof(e.UID)))
	}
}
