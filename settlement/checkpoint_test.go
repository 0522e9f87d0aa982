package settlement

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plasma/types"
)

const checkpointPeriod = 7 * 24 * time.Hour

// disputeFixture Alice -> Bob (nonce 1, 区块 1)，Bob -> Carol (nonce 2, 区块 2)，Carol -> Dave (nonce 3, 区块 3)
type disputeFixture struct {
	*harness
	toBob, toCarol, toDave []byte
}

func newDisputeFixture(t *testing.T, journal Journal) *disputeFixture {
	h := newHarness(t, journal)
	alice, bob, carol, dave := newParty(t), newParty(t), newParty(t), newParty(t)
	toBob := h.transfer(alice, bob.addr, 1, 0)
	toCarol := h.transfer(bob, carol.addr, 2, 1)
	toDave := h.transfer(carol, dave.addr, 3, 2)
	h.commit(1, toBob)
	h.commit(2, toCarol)
	h.commit(3, toDave)
	return &disputeFixture{
		harness: h,
		toBob:   encode(t, toBob),
		toCarol: encode(t, toCarol),
		toDave:  encode(t, toDave),
	}
}

func TestCreateCheckpoint(t *testing.T) {
	h := newHarness(t, nil)
	root, _ := h.checkpoint(4)

	require.NoError(t, h.engine.CreateCheckpoint(root))
	cp, ok := h.engine.Checkpoint(root)
	require.True(t, ok)
	assert.True(t, cp.CreatedAt.Equal(genesis))

	h.clock.Advance(time.Hour)
	assert.ErrorIs(t, h.engine.CreateCheckpoint(root), types.ErrDuplicateEntry)
	cp, _ = h.engine.Checkpoint(root)
	assert.True(t, cp.CreatedAt.Equal(genesis), "creation time is never overwritten")

	assert.ErrorIs(t, h.engine.CreateCheckpoint(common.Hash{}), types.ErrPreconditionFailed)
}

func TestCreateCheckpoint_JournalFailureRollsBack(t *testing.T) {
	journal := &recordingJournal{fail: true}
	h := newHarness(t, journal)
	root, _ := h.checkpoint(4)

	require.Error(t, h.engine.CreateCheckpoint(root))
	_, ok := h.engine.Checkpoint(root)
	assert.False(t, ok)

	journal.setFail(false)
	require.NoError(t, h.engine.CreateCheckpoint(root))
	require.Len(t, journal.commits, 1)
	assert.Equal(t, root, journal.commits[0].Checkpoints[0].Root)
}

func TestChallengeCheckpoint_AndRespond(t *testing.T) {
	f := newDisputeFixture(t, nil)
	root, nonceProof := f.checkpoint(5)
	require.NoError(t, f.engine.CreateCheckpoint(root))

	// 争议期包含截止时刻
	f.clock.Advance(checkpointPeriod)
	require.NoError(t, f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 5, f.toCarol, f.proof(2), 2))
	disputes := f.engine.CheckpointDisputes(assetID, root)
	require.Len(t, disputes, 1)
	assert.Equal(t, f.toCarol, disputes[0].Tx)
	assert.Equal(t, uint64(2), disputes[0].Block)

	err := f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 5, f.toCarol, f.proof(2), 2)
	assert.ErrorIs(t, err, types.ErrDuplicateEntry)

	// 回应区块必须晚于争议交易
	err = f.engine.RespondCheckpointChallenge(assetID, root, f.toCarol, f.toDave, f.proof(2), 2)
	assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	// 回应必须接续争议交易
	err = f.engine.RespondCheckpointChallenge(assetID, root, f.toCarol, f.toBob, f.proof(1), 3)
	assert.ErrorIs(t, err, types.ErrPreconditionFailed)

	require.NoError(t, f.engine.RespondCheckpointChallenge(assetID, root, f.toCarol, f.toDave, f.proof(3), 3))
	assert.Empty(t, f.engine.CheckpointDisputes(assetID, root))

	err = f.engine.RespondCheckpointChallenge(assetID, root, f.toCarol, f.toDave, f.proof(3), 3)
	assert.ErrorIs(t, err, types.ErrAbsent)
}

func TestChallengeCheckpoint_Rejects(t *testing.T) {
	t.Run("unknown checkpoint", func(t *testing.T) {
		f := newDisputeFixture(t, nil)
		root, nonceProof := f.checkpoint(5)
		err := f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 5, f.toCarol, f.proof(2), 2)
		assert.ErrorIs(t, err, types.ErrAbsent)
	})
	t.Run("window closed", func(t *testing.T) {
		f := newDisputeFixture(t, nil)
		root, nonceProof := f.checkpoint(5)
		require.NoError(t, f.engine.CreateCheckpoint(root))
		f.clock.Advance(checkpointPeriod + time.Second)
		err := f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 5, f.toCarol, f.proof(2), 2)
		assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	})
	t.Run("nonce is consistent", func(t *testing.T) {
		f := newDisputeFixture(t, nil)
		root, nonceProof := f.checkpoint(2)
		require.NoError(t, f.engine.CreateCheckpoint(root))
		err := f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 2, f.toCarol, f.proof(2), 2)
		assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	})
	t.Run("nonce not in checkpoint", func(t *testing.T) {
		f := newDisputeFixture(t, nil)
		root, nonceProof := f.checkpoint(5)
		require.NoError(t, f.engine.CreateCheckpoint(root))
		err := f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 6, f.toCarol, f.proof(2), 2)
		assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	})
	t.Run("tx not in block", func(t *testing.T) {
		f := newDisputeFixture(t, nil)
		root, nonceProof := f.checkpoint(5)
		require.NoError(t, f.engine.CreateCheckpoint(root))
		err := f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 5, f.toCarol, f.proof(3), 3)
		assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	})
}

func TestRespondWithHistoricalCheckpoint(t *testing.T) {
	f := newDisputeFixture(t, nil)
	olderRoot, olderProof := f.checkpoint(3)
	require.NoError(t, f.engine.CreateCheckpoint(olderRoot))

	f.clock.Advance(checkpointPeriod + time.Hour)
	root, nonceProof := f.checkpoint(5)
	require.NoError(t, f.engine.CreateCheckpoint(root))
	require.NoError(t, f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 5, f.toCarol, f.proof(2), 2))

	// 不能引用自身
	err := f.engine.RespondWithHistoricalCheckpoint(assetID, root, f.proof(2), root, nonceProof, f.toCarol, 5)
	assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	// nonce 必须高于争议交易
	err = f.engine.RespondWithHistoricalCheckpoint(assetID, root, f.proof(2), olderRoot, olderProof, f.toCarol, 2)
	assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	// 争议交易的包含证明
	err = f.engine.RespondWithHistoricalCheckpoint(assetID, root, []byte{0x01}, olderRoot, olderProof, f.toCarol, 3)
	assert.ErrorIs(t, err, types.ErrPreconditionFailed)

	require.NoError(t, f.engine.RespondWithHistoricalCheckpoint(assetID, root, f.proof(2), olderRoot, olderProof, f.toCarol, 3))
	assert.Empty(t, f.engine.CheckpointDisputes(assetID, root))
}

func TestRespondWithHistoricalCheckpoint_OlderStillDisputable(t *testing.T) {
	f := newDisputeFixture(t, nil)
	olderRoot, olderProof := f.checkpoint(3)
	require.NoError(t, f.engine.CreateCheckpoint(olderRoot))

	f.clock.Advance(time.Hour)
	root, nonceProof := f.checkpoint(5)
	require.NoError(t, f.engine.CreateCheckpoint(root))
	require.NoError(t, f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 5, f.toCarol, f.proof(2), 2))

	err := f.engine.RespondWithHistoricalCheckpoint(assetID, root, f.proof(2), olderRoot, olderProof, f.toCarol, 3)
	assert.ErrorIs(t, err, types.ErrPreconditionFailed)
	assert.Len(t, f.engine.CheckpointDisputes(assetID, root), 1)
}

func TestChallengeCheckpoint_ConcurrentDisputes(t *testing.T) {
	f := newDisputeFixture(t, &recordingJournal{})
	root, nonceProof := f.checkpoint(9)
	require.NoError(t, f.engine.CreateCheckpoint(root))

	type challenge struct {
		tx    []byte
		block uint64
	}
	challenges := []challenge{{f.toBob, 1}, {f.toCarol, 2}, {f.toDave, 3}}
	done := make(chan error, len(challenges))
	for _, c := range challenges {
		go func(c challenge) {
			done <- f.engine.ChallengeCheckpoint(assetID, root, nonceProof, 9, c.tx, f.proof(c.block), c.block)
		}(c)
	}
	for range challenges {
		require.NoError(t, <-done)
	}
	assert.Len(t, f.engine.CheckpointDisputes(assetID, root), 3)
	counts, _ := f.engine.Metrics()
	assert.Equal(t, uint64(3), counts["ChallengeCheckpoint"].OK)
}
