// Package settlement 资产退出与 checkpoint 争议状态机
//
// 每个资产 id 单写者：同一资产上的操作按锁分条串行执行，不同资产互不阻塞。
// 每个操作先完成全部校验，再修改内存状态并写入 Journal；
// Journal 写入失败时按相反顺序撤销。按资产查询同样持有资产锁，
// 只能看到提交成功或撤销之后的状态。
package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"

	"plasma/config"
	"plasma/dispute"
	"plasma/logs"
	"plasma/merkle"
	"plasma/stats"
	"plasma/transaction"
	"plasma/types"
	"plasma/utils"
)

// Options 外部协作者；Ledger 必填，其余为空时使用默认实现
type Options struct {
	Ledger   BlockLedger
	Verifier ProofVerifier
	Decoder  TransactionDecoder
	Clock    Clock
	Journal  Journal
	Logger   logs.Logger
}

// Engine 结算引擎
type Engine struct {
	exitPeriod       time.Duration
	checkpointPeriod time.Duration

	ledger   BlockLedger
	verifier ProofVerifier
	decoder  TransactionDecoder
	clock    Clock
	journal  Journal
	logger   logs.Logger

	stripes []sync.Mutex

	stateMu sync.RWMutex
	exits   map[uint256.Int]*types.ExitRecord
	custody map[uint256.Int]*big.Int

	cpMu        sync.RWMutex
	checkpoints map[common.Hash]types.CheckpointRecord

	// 两个登记表创建后不再替换，自身带锁
	exitChallenges *dispute.Registry[uint256.Int]
	disputes       *dispute.Registry[types.CheckpointKey]

	txCache *lru.Cache
	stats   *stats.Stats
}

// NewEngine 创建结算引擎
func NewEngine(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Ledger == nil {
		return nil, errors.New("settlement: block ledger is required")
	}
	if opts.Verifier == nil {
		opts.Verifier = merkle.NewVerifier(cfg.Tree.Depth)
	}
	if opts.Decoder == nil {
		opts.Decoder = transaction.NewDecoder()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logs.NewNodeLogger("settlement", 0)
	}

	txCache, err := lru.New(cfg.Settlement.TxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create tx cache: %w", err)
	}

	return &Engine{
		exitPeriod:       cfg.Settlement.ExitChallengePeriod,
		checkpointPeriod: cfg.Settlement.CheckpointChallengePeriod,
		ledger:           opts.Ledger,
		verifier:         opts.Verifier,
		decoder:          opts.Decoder,
		clock:            opts.Clock,
		journal:          opts.Journal,
		logger:           opts.Logger,
		stripes:          make([]sync.Mutex, cfg.Settlement.LockStripes),
		exits:            make(map[uint256.Int]*types.ExitRecord),
		custody:          make(map[uint256.Int]*big.Int),
		checkpoints:      make(map[common.Hash]types.CheckpointRecord),
		exitChallenges:   dispute.NewRegistry[uint256.Int](),
		disputes:         dispute.NewRegistry[types.CheckpointKey](),
		txCache:          txCache,
		stats:            stats.NewStats(cfg.Stats.LatencySamples),
	}, nil
}

// ============================================
// 内部工具
// ============================================

func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{types.ErrPreconditionFailed}, args...)...)
}

func absentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{types.ErrAbsent}, args...)...)
}

// lockAsset 取资产所在的锁分条
func (e *Engine) lockAsset(uid *uint256.Int) func() {
	mu := &e.stripes[utils.StripeIndex(uid, len(e.stripes))]
	mu.Lock()
	return mu.Unlock
}

// decode 解码交易，按内容哈希缓存；返回值只读
func (e *Engine) decode(raw []byte) (*types.DecodedTx, error) {
	if len(raw) == 0 {
		return nil, preconditionf("empty transaction")
	}
	key := crypto.Keccak256Hash(raw)
	if v, ok := e.txCache.Get(key); ok {
		return v.(*types.DecodedTx), nil
	}
	tx, err := e.decoder.Decode(raw)
	if err != nil {
		if errors.Is(err, types.ErrPreconditionFailed) || errors.Is(err, types.ErrInvalidEncoding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrPreconditionFailed, err)
	}
	e.txCache.Add(key, tx)
	return tx, nil
}

// checkTx 校验交易包含在账本区块中
func (e *Engine) checkTx(tx *types.DecodedTx, proof []byte, blockNumber uint64) error {
	root, err := e.ledger.RootAt(blockNumber)
	if err != nil {
		return preconditionf("root of block %d unavailable: %v", blockNumber, err)
	}
	if !e.verifier.Verify(tx.Hash, &tx.UID, root, proof) {
		return preconditionf("tx %s is not included in block %d", tx.Hash.Hex(), blockNumber)
	}
	return nil
}

// checkNonce 校验 nonce 记录在 checkpoint 中
func (e *Engine) checkNonce(uid *uint256.Int, nonce uint64, root common.Hash, proof []byte) error {
	if !e.verifier.Verify(types.NonceLeaf(nonce), uid, root, proof) {
		return preconditionf("nonce %d of uid %s is not included in checkpoint %s", nonce, uid.Dec(), root.Hex())
	}
	return nil
}

func (e *Engine) exitLocked(uid *uint256.Int) *types.ExitRecord {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.exits[*uid]
}

func (e *Engine) checkpoint(root common.Hash) (types.CheckpointRecord, bool) {
	e.cpMu.RLock()
	defer e.cpMu.RUnlock()
	cp, ok := e.checkpoints[root]
	return cp, ok
}

// ============================================
// 变更与回滚
// ============================================

// mutation 一次操作内的全部修改；commit 失败时撤销
type mutation struct {
	e    *Engine
	cs   *Changeset
	undo []func()
}

func (e *Engine) begin() *mutation {
	return &mutation{e: e, cs: newChangeset()}
}

func (m *mutation) putExit(rec *types.ExitRecord) {
	e := m.e
	uid := rec.UID
	e.stateMu.Lock()
	old, had := e.exits[uid]
	e.exits[uid] = rec
	e.stateMu.Unlock()

	m.cs.Exits[uid] = rec.Clone()
	m.undo = append(m.undo, func() {
		e.stateMu.Lock()
		defer e.stateMu.Unlock()
		if had {
			e.exits[uid] = old
		} else {
			delete(e.exits, uid)
		}
	})
}

// setState 在副本上改状态后替换，旧记录用于回滚
func (m *mutation) setState(uid *uint256.Int, state types.ExitState) {
	cur := m.e.exitLocked(uid)
	next := cur.Clone()
	next.State = state
	m.putExit(next)
}

func (m *mutation) deleteExit(uid *uint256.Int) {
	e := m.e
	key := *uid
	e.stateMu.Lock()
	old, had := e.exits[key]
	delete(e.exits, key)
	e.stateMu.Unlock()

	m.cs.Exits[key] = nil
	m.undo = append(m.undo, func() {
		if !had {
			return
		}
		e.stateMu.Lock()
		e.exits[key] = old
		e.stateMu.Unlock()
	})
}

func (m *mutation) setCustody(uid *uint256.Int, amount *big.Int) {
	e := m.e
	key := *uid
	e.stateMu.Lock()
	old, had := e.custody[key]
	if amount == nil {
		delete(e.custody, key)
	} else {
		e.custody[key] = amount
	}
	e.stateMu.Unlock()

	m.cs.Custody[key] = amount
	m.undo = append(m.undo, func() {
		e.stateMu.Lock()
		defer e.stateMu.Unlock()
		if had {
			e.custody[key] = old
		} else {
			delete(e.custody, key)
		}
	})
}

func (m *mutation) addChallenge(uid *uint256.Int, tx []byte, block uint64) error {
	reg := m.e.exitChallenges
	snap := reg.Snapshot(*uid)
	if _, err := reg.Add(*uid, tx, block); err != nil {
		return err
	}
	m.cs.ExitChallenges[*uid] = reg.Entries(*uid)
	m.undo = append(m.undo, func() { _ = reg.Restore(*uid, snap) })
	return nil
}

func (m *mutation) removeChallenge(uid *uint256.Int, tx []byte) error {
	reg := m.e.exitChallenges
	snap := reg.Snapshot(*uid)
	if err := reg.Remove(*uid, tx); err != nil {
		return err
	}
	m.cs.ExitChallenges[*uid] = reg.Entries(*uid)
	m.undo = append(m.undo, func() { _ = reg.Restore(*uid, snap) })
	return nil
}

func (m *mutation) addDispute(key types.CheckpointKey, tx []byte, block uint64) error {
	reg := m.e.disputes
	snap := reg.Snapshot(key)
	if _, err := reg.Add(key, tx, block); err != nil {
		return err
	}
	m.cs.Disputes[key] = reg.Entries(key)
	m.undo = append(m.undo, func() { _ = reg.Restore(key, snap) })
	return nil
}

func (m *mutation) removeDispute(key types.CheckpointKey, tx []byte) error {
	reg := m.e.disputes
	snap := reg.Snapshot(key)
	if err := reg.Remove(key, tx); err != nil {
		return err
	}
	m.cs.Disputes[key] = reg.Entries(key)
	m.undo = append(m.undo, func() { _ = reg.Restore(key, snap) })
	return nil
}

// putCheckpoint 调用方持有 cpMu 写锁
func (m *mutation) putCheckpoint(rec types.CheckpointRecord) {
	e := m.e
	e.checkpoints[rec.Root] = rec
	m.cs.Checkpoints = append(m.cs.Checkpoints, rec)
	m.undo = append(m.undo, func() { delete(e.checkpoints, rec.Root) })
}

func (m *mutation) rollback() {
	for i := len(m.undo) - 1; i >= 0; i-- {
		m.undo[i]()
	}
	m.undo = nil
}

// commit 写入 Journal；失败时撤销内存修改
func (m *mutation) commit() error {
	if m.e.journal == nil || m.cs.Empty() {
		return nil
	}
	if err := m.e.journal.Commit(m.cs); err != nil {
		m.rollback()
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// ============================================
// 托管登记与查询
// ============================================

// Deposit 登记资产托管金额（资金划转本身不在此处理）
func (e *Engine) Deposit(uid *uint256.Int, amount *big.Int) (err error) {
	defer e.stats.Observe("Deposit", time.Now(), &err)
	if uid == nil || amount == nil || amount.Sign() <= 0 {
		return preconditionf("deposit needs a uid and a positive amount")
	}
	unlock := e.lockAsset(uid)
	defer unlock()

	e.stateMu.RLock()
	_, held := e.custody[*uid]
	_, exited := e.exits[*uid]
	e.stateMu.RUnlock()
	if held || exited {
		return fmt.Errorf("%w: uid %s already deposited", types.ErrDuplicateEntry, uid.Dec())
	}

	m := e.begin()
	m.setCustody(uid, new(big.Int).Set(amount))
	if err := m.commit(); err != nil {
		return err
	}
	e.logger.Info("[Settlement] deposit uid=%s amount=%s", uid.Dec(), utils.FormatAmount(amount))
	return nil
}

// Custody 资产的托管金额，未托管时返回 nil
func (e *Engine) Custody(uid *uint256.Int) *big.Int {
	unlock := e.lockAsset(uid)
	defer unlock()
	return e.custodyOf(uid)
}

func (e *Engine) custodyOf(uid *uint256.Int) *big.Int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if v, ok := e.custody[*uid]; ok {
		return new(big.Int).Set(v)
	}
	return nil
}

// Exit 退出记录副本
func (e *Engine) Exit(uid *uint256.Int) (*types.ExitRecord, bool) {
	unlock := e.lockAsset(uid)
	defer unlock()
	rec := e.exitLocked(uid)
	if rec == nil {
		return nil, false
	}
	return rec.Clone(), true
}

// ExitState 资产退出状态，没有记录时为 NONE
func (e *Engine) ExitState(uid *uint256.Int) types.ExitState {
	unlock := e.lockAsset(uid)
	defer unlock()
	return e.stateOf(uid)
}

func (e *Engine) stateOf(uid *uint256.Int) types.ExitState {
	if rec := e.exitLocked(uid); rec != nil {
		return rec.State
	}
	return types.ExitNone
}

// ExitChallengeExists 挑战是否仍然挂起
func (e *Engine) ExitChallengeExists(uid *uint256.Int, challengeTx []byte) bool {
	unlock := e.lockAsset(uid)
	defer unlock()
	return e.exitChallenges.Exists(*uid, challengeTx)
}

// ExitChallenges 资产上挂起的挑战（槽位顺序）
func (e *Engine) ExitChallenges(uid *uint256.Int) []types.ChallengeEntry {
	unlock := e.lockAsset(uid)
	defer unlock()
	return e.exitChallenges.Entries(*uid)
}

// Checkpoint 查询 checkpoint 记录
func (e *Engine) Checkpoint(root common.Hash) (types.CheckpointRecord, bool) {
	return e.checkpoint(root)
}

// CheckpointDisputes (资产, checkpoint) 上挂起的争议
func (e *Engine) CheckpointDisputes(uid *uint256.Int, root common.Hash) []types.ChallengeEntry {
	unlock := e.lockAsset(uid)
	defer unlock()
	return e.disputes.Entries(types.CheckpointKey{UID: *uid, Root: root})
}

// Metrics 各入口的调用计数与延迟
func (e *Engine) Metrics() (map[string]stats.OpCounts, map[string]stats.LatencySummary) {
	return e.stats.Counts(), e.stats.Latency(false)
}

// Restore 用持久化快照初始化空引擎，挑战槽位顺序保持不变
// 只在启动时、开始处理请求之前调用
func (e *Engine) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.cpMu.Lock()
	defer e.cpMu.Unlock()

	if len(e.exits) != 0 || len(e.custody) != 0 || len(e.checkpoints) != 0 ||
		e.exitChallenges.Scopes() != 0 || e.disputes.Scopes() != 0 {
		return errors.New("settlement: restore into a non-empty engine")
	}
	// 先在临时登记表上校验，全部通过后再写入引擎自己的登记表
	challenges := dispute.NewRegistry[uint256.Int]()
	for uid, entries := range snap.ExitChallenges {
		if err := challenges.Restore(uid, entries); err != nil {
			return fmt.Errorf("restore challenges of %s: %w", uid.Dec(), err)
		}
	}
	disputes := dispute.NewRegistry[types.CheckpointKey]()
	for key, entries := range snap.Disputes {
		if err := disputes.Restore(key, entries); err != nil {
			return fmt.Errorf("restore disputes of %s/%s: %w", key.UID.Dec(), key.Root.Hex(), err)
		}
	}
	for uid := range snap.ExitChallenges {
		_ = e.exitChallenges.Restore(uid, challenges.Entries(uid))
	}
	for key := range snap.Disputes {
		_ = e.disputes.Restore(key, disputes.Entries(key))
	}
	for _, rec := range snap.Exits {
		e.exits[rec.UID] = rec.Clone()
	}
	for uid, amount := range snap.Custody {
		e.custody[uid] = new(big.Int).Set(amount)
	}
	for _, cp := range snap.Checkpoints {
		e.checkpoints[cp.Root] = cp
	}
	e.logger.Info("[Settlement] restored %d exits, %d deposits, %d checkpoints",
		len(snap.Exits), len(snap.Custody), len(snap.Checkpoints))
	return nil
}
