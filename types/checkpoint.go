package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CheckpointRecord 每个根只创建一次，之后只读
type CheckpointRecord struct {
	Root      common.Hash
	CreatedAt time.Time
}

// DisputeDeadline checkpoint 可被争议的最后时刻（含）
func (c CheckpointRecord) DisputeDeadline(period time.Duration) time.Time {
	return c.CreatedAt.Add(period)
}

// Finalized 争议期已过
func (c CheckpointRecord) Finalized(now time.Time, period time.Duration) bool {
	return now.After(c.DisputeDeadline(period))
}

// CheckpointKey checkpoint 争议的作用域：(资产 id, checkpoint 根)
type CheckpointKey struct {
	UID  uint256.Int
	Root common.Hash
}
