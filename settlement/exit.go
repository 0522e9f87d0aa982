package settlement

import (
	"bytes"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"plasma/types"
)

// StartExit 当前所有者用最近两笔交易发起退出
// last 必须接续 prior（prior 的新所有者签名，nonce+1），调用者是 last 的新所有者
func (e *Engine) StartExit(priorTx, priorProof []byte, priorBlock uint64,
	lastTx, lastProof []byte, lastBlock uint64, caller common.Address) (err error) {
	defer e.stats.Observe("StartExit", time.Now(), &err)

	prior, err := e.decode(priorTx)
	if err != nil {
		return err
	}
	last, err := e.decode(lastTx)
	if err != nil {
		return err
	}
	uid := &last.UID

	unlock := e.lockAsset(uid)
	defer unlock()

	if !prior.SameAsset(last) {
		return preconditionf("prior and last transactions refer to different assets")
	}
	if prior.NewOwner != last.Signer {
		return preconditionf("last tx is not signed by the prior owner %s", prior.NewOwner.Hex())
	}
	if next, ok := types.NextNonce(prior.Nonce); !ok || last.Nonce != next {
		return preconditionf("nonce gap: prior %d, last %d", prior.Nonce, last.Nonce)
	}
	if last.PrevBlock != priorBlock || priorBlock >= lastBlock {
		return preconditionf("block order: prior %d, last %d, last.prevBlock %d", priorBlock, lastBlock, last.PrevBlock)
	}
	if caller != last.NewOwner {
		return preconditionf("caller %s is not the owner", caller.Hex())
	}
	if v := e.custodyOf(uid); v == nil || v.Sign() == 0 {
		return preconditionf("uid %s is not in custody", uid.Dec())
	}
	if err := e.checkTx(prior, priorProof, priorBlock); err != nil {
		return err
	}
	if err := e.checkTx(last, lastProof, lastBlock); err != nil {
		return err
	}
	if state := e.stateOf(uid); state != types.ExitNone {
		return preconditionf("uid %s exit is %s", uid.Dec(), state)
	}
	if n := e.exitChallenges.Count(*uid); n != 0 {
		return preconditionf("uid %s still has %d open challenges", uid.Dec(), n)
	}

	rec := &types.ExitRecord{
		UID:        *uid,
		State:      types.ExitPending,
		Deadline:   e.clock.Now().Add(e.exitPeriod),
		PriorTx:    append([]byte(nil), priorTx...),
		PriorBlock: priorBlock,
		LastTx:     append([]byte(nil), lastTx...),
		LastBlock:  lastBlock,
	}
	m := e.begin()
	m.putExit(rec)
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Info("[Exit] uid=%s started by %s, deadline %s", uid.Dec(), caller.Hex(), rec.Deadline.Format(time.RFC3339))
	return nil
}

// ChallengeExit 任何人用一笔包含在账本中的交易挑战挂起的退出
//
// 按顺序匹配：
//  1. 退出的新所有者后来又签过更高 nonce 的交易：退出作废，删除记录
//  2. 在 last 所在区块之前，prior 的新所有者已经把资产转给别人：双花，删除记录
//  3. 挑战交易早于 prior 所在区块：历史连续性存疑，进入 CHALLENGED 并登记挑战
func (e *Engine) ChallengeExit(challengeTx, proof []byte, challengeBlock uint64) (err error) {
	defer e.stats.Observe("ChallengeExit", time.Now(), &err)

	ch, err := e.decode(challengeTx)
	if err != nil {
		return err
	}
	uid := &ch.UID

	unlock := e.lockAsset(uid)
	defer unlock()

	rec := e.exitLocked(uid)
	if rec == nil || rec.State != types.ExitPending {
		return preconditionf("uid %s has no pending exit", uid.Dec())
	}
	prior, err := e.decode(rec.PriorTx)
	if err != nil {
		return err
	}
	last, err := e.decode(rec.LastTx)
	if err != nil {
		return err
	}
	if !ch.SameAsset(last) {
		return preconditionf("challenge refers to a different asset")
	}
	if err := e.checkTx(ch, proof, challengeBlock); err != nil {
		return err
	}

	m := e.begin()
	switch {
	case ch.Signer == last.NewOwner && ch.Nonce > last.Nonce:
		m.deleteExit(uid)
		if err := m.commit(); err != nil {
			return err
		}
		e.logger.Warn("[Exit] uid=%s cancelled: owner spent it later (nonce %d)", uid.Dec(), ch.Nonce)
		return nil

	case challengeBlock < rec.LastBlock && ch.Signer == prior.NewOwner && ch.Nonce > prior.Nonce:
		m.deleteExit(uid)
		if err := m.commit(); err != nil {
			return err
		}
		e.logger.Warn("[Exit] uid=%s cancelled: double spend in block %d", uid.Dec(), challengeBlock)
		return nil
	}

	if challengeBlock < rec.PriorBlock {
		if err := m.addChallenge(uid, challengeTx, challengeBlock); err != nil {
			return err
		}
		m.setState(uid, types.ExitChallenged)
	}
	// 只有刚刚进入 CHALLENGED 才可能通过
	if e.stateOf(uid) != types.ExitChallenged {
		m.rollback()
		return preconditionf("challenge in block %d does not contest the exit", challengeBlock)
	}
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Info("[Exit] uid=%s challenged with tx from block %d", uid.Dec(), challengeBlock)
	return nil
}

// RespondChallengeExit 退出者用接续挑战交易的下一笔交易回应挑战
func (e *Engine) RespondChallengeExit(challengeTx, respondTx, proof []byte, respondBlock uint64) (err error) {
	defer e.stats.Observe("RespondChallengeExit", time.Now(), &err)

	ch, err := e.decode(challengeTx)
	if err != nil {
		return err
	}
	resp, err := e.decode(respondTx)
	if err != nil {
		return err
	}
	uid := &ch.UID

	unlock := e.lockAsset(uid)
	defer unlock()

	entry, ok := e.exitChallenges.Get(*uid, challengeTx)
	if !ok {
		return absentf("challenge on uid %s", uid.Dec())
	}
	rec := e.exitLocked(uid)
	if rec == nil || rec.State != types.ExitChallenged {
		return preconditionf("uid %s exit is not challenged", uid.Dec())
	}
	if !ch.Continues(resp) {
		return preconditionf("respond tx does not continue the challenge")
	}
	if respondBlock <= entry.Block || respondBlock > rec.PriorBlock {
		return preconditionf("respond block %d outside (%d, %d]", respondBlock, entry.Block, rec.PriorBlock)
	}
	if err := e.checkTx(resp, proof, respondBlock); err != nil {
		return err
	}

	if err := e.resolveExitChallenge(uid, challengeTx); err != nil {
		return err
	}
	e.logger.Info("[Exit] uid=%s challenge answered with tx from block %d", uid.Dec(), respondBlock)
	return nil
}

// RespondChallengeExitWithCheckpoint 用已过争议期的 checkpoint 证明存在更高的 nonce
func (e *Engine) RespondChallengeExitWithCheckpoint(challengeTx []byte, checkpointRoot common.Hash,
	proof []byte, higherNonce uint64) (err error) {
	defer e.stats.Observe("RespondChallengeExitWithCheckpoint", time.Now(), &err)

	ch, err := e.decode(challengeTx)
	if err != nil {
		return err
	}
	uid := &ch.UID

	unlock := e.lockAsset(uid)
	defer unlock()

	if !e.exitChallenges.Exists(*uid, challengeTx) {
		return absentf("challenge on uid %s", uid.Dec())
	}
	rec := e.exitLocked(uid)
	if rec == nil || rec.State != types.ExitChallenged {
		return preconditionf("uid %s exit is not challenged", uid.Dec())
	}
	cp, ok := e.checkpoint(checkpointRoot)
	if !ok {
		return absentf("checkpoint %s", checkpointRoot.Hex())
	}
	if !cp.Finalized(e.clock.Now(), e.checkpointPeriod) {
		return preconditionf("checkpoint %s is still disputable", checkpointRoot.Hex())
	}
	key := types.CheckpointKey{UID: *uid, Root: checkpointRoot}
	if n := e.disputes.Count(key); n != 0 {
		return preconditionf("checkpoint %s has %d open disputes for uid %s", checkpointRoot.Hex(), n, uid.Dec())
	}
	if higherNonce <= ch.Nonce {
		return preconditionf("nonce %d is not above challenge nonce %d", higherNonce, ch.Nonce)
	}
	if err := e.checkNonce(uid, higherNonce, checkpointRoot, proof); err != nil {
		return err
	}

	if err := e.resolveExitChallenge(uid, challengeTx); err != nil {
		return err
	}
	e.logger.Info("[Exit] uid=%s challenge answered by checkpoint %s", uid.Dec(), checkpointRoot.Hex())
	return nil
}

// resolveExitChallenge 删除挑战，没有剩余挑战时回到 PENDING；调用方持有资产锁
func (e *Engine) resolveExitChallenge(uid *uint256.Int, challengeTx []byte) error {
	m := e.begin()
	if err := m.removeChallenge(uid, challengeTx); err != nil {
		return err
	}
	if e.exitChallenges.Count(*uid) == 0 {
		m.setState(uid, types.ExitPending)
	}
	return m.commit()
}

// FinishExit 挑战期结束且没有挂起挑战时完成退出，释放托管
func (e *Engine) FinishExit(caller common.Address, priorTx, priorProof []byte, priorBlock uint64,
	lastTx, lastProof []byte, lastBlock uint64) (err error) {
	defer e.stats.Observe("FinishExit", time.Now(), &err)

	prior, err := e.decode(priorTx)
	if err != nil {
		return err
	}
	last, err := e.decode(lastTx)
	if err != nil {
		return err
	}
	uid := &last.UID
	if prior.UID != last.UID {
		return preconditionf("prior and last transactions refer to different assets")
	}

	unlock := e.lockAsset(uid)
	defer unlock()

	rec := e.exitLocked(uid)
	if rec == nil {
		return preconditionf("uid %s has no exit", uid.Dec())
	}
	if now := e.clock.Now(); !now.After(rec.Deadline) {
		return preconditionf("challenge period of uid %s ends at %s", uid.Dec(), rec.Deadline.Format(time.RFC3339))
	}
	if rec.State != types.ExitPending {
		return preconditionf("uid %s exit is %s", uid.Dec(), rec.State)
	}
	if n := e.exitChallenges.Count(*uid); n != 0 {
		return preconditionf("uid %s still has %d open challenges", uid.Dec(), n)
	}
	if caller != last.NewOwner {
		return preconditionf("caller %s is not the owner", caller.Hex())
	}
	if !bytes.Equal(rec.PriorTx, priorTx) || rec.PriorBlock != priorBlock ||
		!bytes.Equal(rec.LastTx, lastTx) || rec.LastBlock != lastBlock {
		return preconditionf("transactions do not match the started exit")
	}
	if err := e.checkTx(prior, priorProof, priorBlock); err != nil {
		return err
	}
	if err := e.checkTx(last, lastProof, lastBlock); err != nil {
		return err
	}

	m := e.begin()
	m.setState(uid, types.ExitFinalized)
	m.setCustody(uid, nil)
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Info("[Exit] uid=%s finalized for %s", uid.Dec(), caller.Hex())
	return nil
}
