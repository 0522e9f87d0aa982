package merkle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// 证明格式：32 字节大端位图（第 l 位为 1 表示第 l 层兄弟不是默认哈希）
// 后接按层从低到高排列的非默认兄弟哈希，每个 32 字节
const bitmapSize = 32

// Verifier 固定深度的默克尔路径校验
type Verifier struct {
	depth int
}

// NewVerifier 创建校验器，depth 越界时按 MaxDepth 处理
func NewVerifier(depth int) *Verifier {
	if depth <= 0 || depth > MaxDepth {
		depth = MaxDepth
	}
	return &Verifier{depth: depth}
}

// Verify 从 leaf 沿证明路径重算根，与 root 比较
func (v *Verifier) Verify(leaf common.Hash, uid *uint256.Int, root common.Hash, proof []byte) bool {
	computed, ok := ComputeRoot(leaf, uid, proof, v.depth)
	return ok && computed == root
}

// ComputeRoot 按证明重算根；证明格式错误时 ok=false
func ComputeRoot(leaf common.Hash, uid *uint256.Int, proof []byte, depth int) (common.Hash, bool) {
	if uid == nil || len(proof) < bitmapSize || (len(proof)-bitmapSize)%32 != 0 {
		return common.Hash{}, false
	}
	if depth <= 0 || depth > MaxDepth || uid.BitLen() > depth {
		return common.Hash{}, false
	}

	var bitmap uint256.Int
	bitmap.SetBytes32(proof[:bitmapSize])
	if bitmap.BitLen() > depth {
		return common.Hash{}, false
	}
	siblings := proof[bitmapSize:]
	defaults := DefaultNodes(depth)

	cur := leaf
	idx := *uid
	for l := 0; l < depth; l++ {
		sib := defaults[l]
		if hasBit(&bitmap, l) {
			if len(siblings) < 32 {
				return common.Hash{}, false
			}
			sib = common.BytesToHash(siblings[:32])
			siblings = siblings[32:]
		}
		if isLeft(idx) {
			cur = hashNode(cur, sib)
		} else {
			cur = hashNode(sib, cur)
		}
		idx.Rsh(&idx, 1)
	}
	// 多余的兄弟哈希视为格式错误
	if len(siblings) != 0 {
		return common.Hash{}, false
	}
	return cur, true
}
