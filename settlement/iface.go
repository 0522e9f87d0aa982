package settlement

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"plasma/types"
)

// BlockLedger 账本区块根：只追加、编号单调、写入后不再改写
type BlockLedger interface {
	RootAt(blockNumber uint64) (common.Hash, error)
}

// ProofVerifier 固定深度的默克尔路径校验
type ProofVerifier interface {
	Verify(leaf common.Hash, uid *uint256.Int, root common.Hash, proof []byte) bool
}

// TransactionDecoder 原始交易字节 -> 结算层视图，格式错误返回错误
type TransactionDecoder interface {
	Decode(raw []byte) (*types.DecodedTx, error)
}

// Clock 单调时钟，所有期限判断都与它比较
type Clock interface {
	Now() time.Time
}

// Journal 可选的持久化；一次操作的所有变更在一次 Commit 中原子写入
type Journal interface {
	Commit(cs *Changeset) error
}

// Changeset 一次操作产生的最终状态
// map 中 nil 记录 / 空列表表示删除
type Changeset struct {
	Exits          map[uint256.Int]*types.ExitRecord
	Custody        map[uint256.Int]*big.Int
	ExitChallenges map[uint256.Int][]types.ChallengeEntry
	Disputes       map[types.CheckpointKey][]types.ChallengeEntry
	Checkpoints    []types.CheckpointRecord
}

func newChangeset() *Changeset {
	return &Changeset{
		Exits:          make(map[uint256.Int]*types.ExitRecord),
		Custody:        make(map[uint256.Int]*big.Int),
		ExitChallenges: make(map[uint256.Int][]types.ChallengeEntry),
		Disputes:       make(map[types.CheckpointKey][]types.ChallengeEntry),
	}
}

// Empty 没有任何变更
func (cs *Changeset) Empty() bool {
	return len(cs.Exits) == 0 && len(cs.Custody) == 0 && len(cs.ExitChallenges) == 0 &&
		len(cs.Disputes) == 0 && len(cs.Checkpoints) == 0
}

// Snapshot 完整的结算状态，用于重启恢复
type Snapshot struct {
	Exits          []*types.ExitRecord
	Custody        map[uint256.Int]*big.Int
	ExitChallenges map[uint256.Int][]types.ChallengeEntry
	Disputes       map[types.CheckpointKey][]types.ChallengeEntry
	Checkpoints    []types.CheckpointRecord
}
