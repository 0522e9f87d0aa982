package merkle

import (
	"hash"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// MaxDepth uint256 id 空间的最大深度
const MaxDepth = 256

// keccak 哈希器池，构建整棵树时避免频繁分配
var hasherPool = sync.Pool{
	New: func() interface{} {
		return sha3.NewLegacyKeccak256()
	},
}

func digest(data ...[]byte) common.Hash {
	h := hasherPool.Get().(hash.Hash)
	defer hasherPool.Put(h)
	h.Reset()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// hashNode 内部节点 = keccak(left || right)
func hashNode(left, right common.Hash) common.Hash {
	return digest(left[:], right[:])
}

var (
	defaultOnce   sync.Once
	defaultHashes [MaxDepth + 1]common.Hash
)

// DefaultNodes 返回 0..depth 每一层空子树的默认哈希
// defaults[0] = keccak(32 个 0 字节)，defaults[i] = keccak(defaults[i-1] || defaults[i-1])
// 只在第一次调用时计算，后续直接切片
func DefaultNodes(depth int) []common.Hash {
	defaultOnce.Do(func() {
		var zero common.Hash
		defaultHashes[0] = digest(zero[:])
		for i := 1; i <= MaxDepth; i++ {
			defaultHashes[i] = hashNode(defaultHashes[i-1], defaultHashes[i-1])
		}
	})
	if depth < 0 {
		depth = 0
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	return defaultHashes[:depth+1]
}
