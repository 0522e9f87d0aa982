package dispute

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plasma/types"
)

func tx(s string) []byte { return []byte(s) }

func TestRegistry_AddRemoveReturnsToEmpty(t *testing.T) {
	r := NewRegistry[uint256.Int]()
	scope := *uint256.NewInt(7)

	slot, err := r.Add(scope, tx("c1"), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, slot, "first live slot is 1")
	assert.True(t, r.Exists(scope, tx("c1")))
	assert.Equal(t, 1, r.Count(scope))

	require.NoError(t, r.Remove(scope, tx("c1")))
	assert.False(t, r.Exists(scope, tx("c1")))
	assert.Equal(t, 0, r.Count(scope))
	assert.Equal(t, 0, r.Slot(scope, tx("c1")))
	assert.Nil(t, r.Entries(scope))
	assert.Equal(t, 0, r.Scopes(), "scope is fully reset")

	// 复位后再次添加仍从槽位 1 开始
	slot, err = r.Add(scope, tx("c2"), 11)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
}

func TestRegistry_DuplicateAndAbsent(t *testing.T) {
	r := NewRegistry[uint256.Int]()
	scope := *uint256.NewInt(1)
	_, err := r.Add(scope, tx("a"), 1)
	require.NoError(t, err)
	_, err = r.Add(scope, tx("a"), 2)
	assert.ErrorIs(t, err, types.ErrDuplicateEntry)

	e, ok := r.Get(scope, tx("a"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Block)

	assert.ErrorIs(t, r.Remove(scope, tx("b")), types.ErrAbsent)
	assert.ErrorIs(t, r.Remove(*uint256.NewInt(2), tx("a")), types.ErrAbsent)
	assert.Equal(t, 1, r.Count(scope))
}

func TestRegistry_SwapWithLastCompaction(t *testing.T) {
	r := NewRegistry[uint256.Int]()
	scope := *uint256.NewInt(3)
	for i, name := range []string{"a", "b", "c", "d"} {
		slot, err := r.Add(scope, tx(name), uint64(i))
		require.NoError(t, err)
		assert.Equal(t, i+1, slot)
	}

	// 删除槽位 2 的 b，最后的 d 移到槽位 2
	require.NoError(t, r.Remove(scope, tx("b")))
	assert.Equal(t, 3, r.Count(scope))
	assert.Equal(t, 1, r.Slot(scope, tx("a")))
	assert.Equal(t, 2, r.Slot(scope, tx("d")))
	assert.Equal(t, 3, r.Slot(scope, tx("c")))
	e, ok := r.Get(scope, tx("d"))
	require.True(t, ok)
	assert.Equal(t, uint64(3), e.Block, "moved entry keeps its block number")

	// 删除最后一个不需要搬移
	require.NoError(t, r.Remove(scope, tx("c")))
	assert.Equal(t, []types.ChallengeEntry{
		{Exists: true, Tx: tx("a"), Block: 0},
		{Exists: true, Tx: tx("d"), Block: 3},
	}, r.Entries(scope))
}

func TestRegistry_ScopesAreIndependent(t *testing.T) {
	r := NewRegistry[types.CheckpointKey]()
	k1 := types.CheckpointKey{UID: *uint256.NewInt(1), Root: common.HexToHash("0x01")}
	k2 := types.CheckpointKey{UID: *uint256.NewInt(1), Root: common.HexToHash("0x02")}

	_, err := r.Add(k1, tx("x"), 1)
	require.NoError(t, err)
	_, err = r.Add(k2, tx("x"), 1)
	require.NoError(t, err)

	require.NoError(t, r.Remove(k1, tx("x")))
	assert.False(t, r.Exists(k1, tx("x")))
	assert.True(t, r.Exists(k2, tx("x")))
}

func TestRegistry_InterleavedMatchesModel(t *testing.T) {
	r := NewRegistry[uint256.Int]()
	scope := *uint256.NewInt(9)
	model := map[string]uint64{}
	rnd := rand.New(rand.NewSource(42))

	for step := 0; step < 2000; step++ {
		name := fmt.Sprintf("tx-%d", rnd.Intn(40))
		if _, ok := model[name]; ok && rnd.Intn(2) == 0 {
			require.NoError(t, r.Remove(scope, tx(name)))
			delete(model, name)
		} else if !ok {
			_, err := r.Add(scope, tx(name), uint64(step))
			require.NoError(t, err)
			model[name] = uint64(step)
		}

		require.Equal(t, len(model), r.Count(scope))
		// 槽位 1..Count 连续且反向索引正确
		entries := r.Entries(scope)
		for i, e := range entries {
			require.True(t, e.Exists)
			require.Equal(t, i+1, r.Slot(scope, e.Tx))
			require.Equal(t, model[string(e.Tx)], e.Block)
		}
		for name := range model {
			require.True(t, r.Exists(scope, tx(name)))
		}
	}
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	r := NewRegistry[uint256.Int]()
	scope := *uint256.NewInt(5)
	for i, name := range []string{"a", "b", "c"} {
		_, err := r.Add(scope, tx(name), uint64(i))
		require.NoError(t, err)
	}
	snap := r.Snapshot(scope)

	require.NoError(t, r.Remove(scope, tx("a")))
	_, _ = r.Add(scope, tx("z"), 9)

	require.NoError(t, r.Restore(scope, snap))
	assert.Equal(t, snap, r.Entries(scope))
	assert.Equal(t, 1, r.Slot(scope, tx("a")))
	assert.False(t, r.Exists(scope, tx("z")))

	// 重复条目拒绝恢复，原状不变
	err := r.Restore(scope, []types.ChallengeEntry{{Tx: tx("q")}, {Tx: tx("q")}})
	assert.ErrorIs(t, err, types.ErrDuplicateEntry)
	assert.Equal(t, snap, r.Entries(scope))

	require.NoError(t, r.Restore(scope, nil))
	assert.Equal(t, 0, r.Count(scope))
}
