package types

import (
	"time"

	"github.com/holiman/uint256"
)

// ExitState 资产退出状态，数值与链上合约保持一致
type ExitState uint8

const (
	ExitNone       ExitState = 0
	ExitChallenged ExitState = 1
	ExitPending    ExitState = 2
	ExitFinalized  ExitState = 3
)

func (s ExitState) String() string {
	switch s {
	case ExitNone:
		return "NONE"
	case ExitChallenged:
		return "CHALLENGED"
	case ExitPending:
		return "PENDING"
	case ExitFinalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// Active PENDING 或 CHALLENGED
func (s ExitState) Active() bool {
	return s == ExitPending || s == ExitChallenged
}

// ExitRecord 以资产 id 为 key 的退出记录
type ExitRecord struct {
	UID        uint256.Int
	State      ExitState
	Deadline   time.Time
	PriorTx    []byte
	PriorBlock uint64
	LastTx     []byte
	LastBlock  uint64
}

// Clone 深拷贝，回滚时使用
func (r *ExitRecord) Clone() *ExitRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.PriorTx = append([]byte(nil), r.PriorTx...)
	cp.LastTx = append([]byte(nil), r.LastTx...)
	return &cp
}

// ChallengeEntry 挑战记录
type ChallengeEntry struct {
	Exists bool
	Tx     []byte
	Block  uint64
}
