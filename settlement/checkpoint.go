package settlement

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"plasma/types"
)

// CreateCheckpoint 登记新的 checkpoint 根，同一个根只能创建一次
func (e *Engine) CreateCheckpoint(root common.Hash) (err error) {
	defer e.stats.Observe("CreateCheckpoint", time.Now(), &err)
	if root == (common.Hash{}) {
		return preconditionf("empty checkpoint root")
	}

	e.cpMu.Lock()
	defer e.cpMu.Unlock()
	if _, ok := e.checkpoints[root]; ok {
		return fmt.Errorf("%w: checkpoint %s", types.ErrDuplicateEntry, root.Hex())
	}

	m := e.begin()
	m.putCheckpoint(types.CheckpointRecord{Root: root, CreatedAt: e.clock.Now()})
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Info("[Checkpoint] %s created", root.Hex())
	return nil
}

// ChallengeCheckpoint 在争议期内指出 checkpoint 记录的 nonce 不可能成立：
// 账本里存在一笔更晚的交易，其 nonce 反而小于 checkpoint 记录的值
func (e *Engine) ChallengeCheckpoint(uid *uint256.Int, checkpointRoot common.Hash, checkpointProof []byte,
	wrongNonce uint64, laterTx, laterProof []byte, laterBlock uint64) (err error) {
	defer e.stats.Observe("ChallengeCheckpoint", time.Now(), &err)
	if uid == nil {
		return preconditionf("nil uid")
	}

	later, err := e.decode(laterTx)
	if err != nil {
		return err
	}
	if later.UID != *uid {
		return preconditionf("tx refers to uid %s, not %s", later.UID.Dec(), uid.Dec())
	}

	unlock := e.lockAsset(uid)
	defer unlock()

	cp, ok := e.checkpoint(checkpointRoot)
	if !ok {
		return absentf("checkpoint %s", checkpointRoot.Hex())
	}
	if e.clock.Now().After(cp.DisputeDeadline(e.checkpointPeriod)) {
		return preconditionf("dispute window of checkpoint %s is closed", checkpointRoot.Hex())
	}
	key := types.CheckpointKey{UID: *uid, Root: checkpointRoot}
	if e.disputes.Exists(key, laterTx) {
		return fmt.Errorf("%w: dispute already open", types.ErrDuplicateEntry)
	}
	if err := e.checkTx(later, laterProof, laterBlock); err != nil {
		return err
	}
	if err := e.checkNonce(uid, wrongNonce, checkpointRoot, checkpointProof); err != nil {
		return err
	}
	if wrongNonce <= later.Nonce {
		return preconditionf("checkpoint nonce %d is consistent with tx nonce %d", wrongNonce, later.Nonce)
	}

	m := e.begin()
	if err := m.addDispute(key, laterTx, laterBlock); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Warn("[Checkpoint] %s disputed for uid=%s (nonce %d > %d)", checkpointRoot.Hex(), uid.Dec(), wrongNonce, later.Nonce)
	return nil
}

// RespondCheckpointChallenge 用接续争议交易的下一笔交易撤销争议
func (e *Engine) RespondCheckpointChallenge(uid *uint256.Int, checkpointRoot common.Hash,
	challengeTx, respondTx, proof []byte, respondBlock uint64) (err error) {
	defer e.stats.Observe("RespondCheckpointChallenge", time.Now(), &err)
	if uid == nil {
		return preconditionf("nil uid")
	}

	ch, err := e.decode(challengeTx)
	if err != nil {
		return err
	}
	resp, err := e.decode(respondTx)
	if err != nil {
		return err
	}

	unlock := e.lockAsset(uid)
	defer unlock()

	key := types.CheckpointKey{UID: *uid, Root: checkpointRoot}
	entry, ok := e.disputes.Get(key, challengeTx)
	if !ok {
		return absentf("dispute on checkpoint %s for uid %s", checkpointRoot.Hex(), uid.Dec())
	}
	if ch.UID != *uid || !ch.Continues(resp) {
		return preconditionf("respond tx does not continue the disputed tx")
	}
	if respondBlock <= entry.Block {
		return preconditionf("respond block %d is not after %d", respondBlock, entry.Block)
	}
	if err := e.checkTx(resp, proof, respondBlock); err != nil {
		return err
	}

	m := e.begin()
	if err := m.removeDispute(key, challengeTx); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Info("[Checkpoint] %s dispute for uid=%s answered by block %d", checkpointRoot.Hex(), uid.Dec(), respondBlock)
	return nil
}

// RespondWithHistoricalCheckpoint 用更早且已过争议期的 checkpoint 撤销争议：
// 旧 checkpoint 记录的 nonce 已经高于争议交易，说明争议交易早已被后续转移覆盖
// proof 为争议交易在其登记区块中的包含证明
func (e *Engine) RespondWithHistoricalCheckpoint(uid *uint256.Int, checkpointRoot common.Hash, proof []byte,
	olderRoot common.Hash, olderProof []byte, challengeTx []byte, higherNonce uint64) (err error) {
	defer e.stats.Observe("RespondWithHistoricalCheckpoint", time.Now(), &err)
	if uid == nil {
		return preconditionf("nil uid")
	}

	ch, err := e.decode(challengeTx)
	if err != nil {
		return err
	}
	if ch.UID != *uid {
		return preconditionf("tx refers to uid %s, not %s", ch.UID.Dec(), uid.Dec())
	}

	unlock := e.lockAsset(uid)
	defer unlock()

	key := types.CheckpointKey{UID: *uid, Root: checkpointRoot}
	entry, ok := e.disputes.Get(key, challengeTx)
	if !ok {
		return absentf("dispute on checkpoint %s for uid %s", checkpointRoot.Hex(), uid.Dec())
	}
	cp, ok := e.checkpoint(checkpointRoot)
	if !ok {
		return absentf("checkpoint %s", checkpointRoot.Hex())
	}
	older, ok := e.checkpoint(olderRoot)
	if !ok {
		return absentf("checkpoint %s", olderRoot.Hex())
	}
	if !older.CreatedAt.Before(cp.CreatedAt) {
		return preconditionf("checkpoint %s does not predate %s", olderRoot.Hex(), checkpointRoot.Hex())
	}
	if !older.Finalized(e.clock.Now(), e.checkpointPeriod) {
		return preconditionf("checkpoint %s is still disputable", olderRoot.Hex())
	}
	if n := e.disputes.Count(types.CheckpointKey{UID: *uid, Root: olderRoot}); n != 0 {
		return preconditionf("checkpoint %s has %d open disputes for uid %s", olderRoot.Hex(), n, uid.Dec())
	}
	if higherNonce <= ch.Nonce {
		return preconditionf("nonce %d is not above disputed nonce %d", higherNonce, ch.Nonce)
	}
	if err := e.checkTx(ch, proof, entry.Block); err != nil {
		return err
	}
	if err := e.checkNonce(uid, higherNonce, olderRoot, olderProof); err != nil {
		return err
	}

	m := e.begin()
	if err := m.removeDispute(key, challengeTx); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Info("[Checkpoint] %s dispute for uid=%s answered by checkpoint %s", checkpointRoot.Hex(), uid.Dec(), olderRoot.Hex())
	return nil
}
