package merkle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tree 固定深度的稀疏默克尔树，构建后只读
// levels[0] 为叶子层，levels[depth] 只含根；未出现的节点取该层默认哈希
type Tree struct {
	depth        int
	levels       []map[uint256.Int]common.Hash
	defaultNodes []common.Hash
	root         common.Hash
}

// NewTree 由稀疏叶子集合构建整棵树，复杂度 O(n·depth)
func NewTree(leaves map[uint256.Int]common.Hash, depth int) (*Tree, error) {
	if depth <= 0 || depth > MaxDepth {
		return nil, fmt.Errorf("invalid tree depth %d", depth)
	}

	level0 := make(map[uint256.Int]common.Hash, len(leaves))
	for uid, leaf := range leaves {
		if uid.BitLen() > depth {
			return nil, fmt.Errorf("uid %s exceeds tree capacity 2^%d", uid.Dec(), depth)
		}
		level0[uid] = leaf
	}

	t := &Tree{
		depth:        depth,
		levels:       make([]map[uint256.Int]common.Hash, depth+1),
		defaultNodes: DefaultNodes(depth),
	}
	t.levels[0] = level0

	for l := 0; l < depth; l++ {
		cur := t.levels[l]
		next := make(map[uint256.Int]common.Hash, (len(cur)+1)/2)
		for idx, h := range cur {
			var parent uint256.Int
			parent.Rsh(&idx, 1)
			if _, done := next[parent]; done {
				continue
			}
			sib := siblingIndex(idx)
			sibHash, ok := cur[sib]
			if !ok {
				sibHash = t.defaultNodes[l]
			}
			if isLeft(idx) {
				next[parent] = hashNode(h, sibHash)
			} else {
				next[parent] = hashNode(sibHash, h)
			}
		}
		t.levels[l+1] = next
	}

	var zero uint256.Int
	if r, ok := t.levels[depth][zero]; ok {
		t.root = r
	} else {
		t.root = t.defaultNodes[depth]
	}
	return t, nil
}

// Root 树根
func (t *Tree) Root() common.Hash {
	return t.root
}

// Depth 树深度
func (t *Tree) Depth() int {
	return t.depth
}

// Leaf 返回叶子值，未插入时 ok=false
func (t *Tree) Leaf(uid *uint256.Int) (common.Hash, bool) {
	h, ok := t.levels[0][*uid]
	return h, ok
}

// Len 叶子数量
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// CreateProof 生成 uid 的压缩包含证明，uid 未插入时返回 nil
func (t *Tree) CreateProof(uid *uint256.Int) []byte {
	if _, ok := t.levels[0][*uid]; !ok {
		return nil
	}

	var bitmap uint256.Int
	siblings := make([]byte, 0, 32*8)
	idx := *uid
	for l := 0; l < t.depth; l++ {
		if h, ok := t.levels[l][siblingIndex(idx)]; ok {
			setBit(&bitmap, l)
			siblings = append(siblings, h[:]...)
		}
		idx.Rsh(&idx, 1)
	}

	bm := bitmap.Bytes32()
	proof := make([]byte, 0, len(bm)+len(siblings))
	proof = append(proof, bm[:]...)
	return append(proof, siblings...)
}

func siblingIndex(idx uint256.Int) uint256.Int {
	idx[0] ^= 1
	return idx
}

func isLeft(idx uint256.Int) bool {
	return idx[0]&1 == 0
}

func setBit(x *uint256.Int, n int) {
	x[n/64] |= 1 << (uint(n) % 64)
}

func hasBit(x *uint256.Int, n int) bool {
	return x[n/64]&(1<<(uint(n)%64)) != 0
}
