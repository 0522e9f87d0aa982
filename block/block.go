// Package block 账本区块与 checkpoint 区块的公共构建器
package block

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"plasma/merkle"
	"plasma/types"
)

// ErrAlreadyBuilt 兼容旧调用方，等同于 types.ErrAlreadyBuilt
var ErrAlreadyBuilt = types.ErrAlreadyBuilt

// Block 标准区块需要实现的方法
type Block interface {
	Hash() common.Hash
	Build() (common.Hash, error)
	IsBuilt() bool
	Marshal() ([]byte, error)
	Unmarshal(raw []byte) error
	CreateProof(uid *uint256.Int) []byte
}

// Entry 区块中的一条 (uid, value)
type Entry struct {
	UID   *uint256.Int
	Value common.Hash
}

// Builder 累积 (uid, value) 并一次性构建稀疏默克尔树
// 所有写操作和 Build 由同一把锁串行化；构建完成后 tree 只读，读取无需加锁
type Builder struct {
	mtx     sync.Mutex
	depth   int
	entries map[uint256.Int]common.Hash

	tree atomic.Pointer[merkle.Tree] // 非 nil 即已构建
}

// NewBuilder 创建指定深度的构建器，depth<=0 时使用 merkle.MaxDepth
func NewBuilder(depth int) *Builder {
	if depth <= 0 {
		depth = merkle.MaxDepth
	}
	return &Builder{
		depth:   depth,
		entries: make(map[uint256.Int]common.Hash),
	}
}

// Depth 树深度
func (b *Builder) Depth() int {
	return b.depth
}

// AddEntry 写入一条记录
func (b *Builder) AddEntry(uid *uint256.Int, value common.Hash) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.addLocked(uid, value)
}

func (b *Builder) addLocked(uid *uint256.Int, value common.Hash) error {
	if b.tree.Load() != nil {
		return ErrAlreadyBuilt
	}
	if uid == nil {
		return fmt.Errorf("%w: nil uid", types.ErrPreconditionFailed)
	}
	if uid.BitLen() > b.depth {
		return fmt.Errorf("%w: uid %s exceeds tree depth %d", types.ErrPreconditionFailed, uid.Dec(), b.depth)
	}
	if _, ok := b.entries[*uid]; ok {
		return fmt.Errorf("%w: uid %s already exist in the block", types.ErrDuplicateEntry, uid.Dec())
	}
	b.entries[*uid] = value
	return nil
}

// Build 构建默克尔树并冻结区块，只能成功一次
func (b *Builder) Build() (common.Hash, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.tree.Load() != nil {
		return common.Hash{}, ErrAlreadyBuilt
	}
	tree, err := merkle.NewTree(b.entries, b.depth)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to build block: %w", err)
	}
	b.tree.Store(tree)
	return tree.Root(), nil
}

// IsBuilt 是否已构建
func (b *Builder) IsBuilt() bool {
	return b.tree.Load() != nil
}

// Root 构建前返回零哈希
func (b *Builder) Root() common.Hash {
	tree := b.tree.Load()
	if tree == nil {
		return common.Hash{}
	}
	return tree.Root()
}

// Proof 构建前返回 nil；uid 不在区块中也返回 nil
func (b *Builder) Proof(uid *uint256.Int) []byte {
	tree := b.tree.Load()
	if tree == nil || uid == nil {
		return nil
	}
	return tree.CreateProof(uid)
}

// Value 读取 uid 对应的值
func (b *Builder) Value(uid *uint256.Int) (common.Hash, bool) {
	if uid == nil {
		return common.Hash{}, false
	}
	if tree := b.tree.Load(); tree != nil {
		return tree.Leaf(uid)
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	v, ok := b.entries[*uid]
	return v, ok
}

// Len 条目数量
func (b *Builder) Len() int {
	if tree := b.tree.Load(); tree != nil {
		return tree.Len()
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.entries)
}

// Entries 按 uid 升序返回全部条目
func (b *Builder) Entries() []Entry {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.sortedLocked()
}

func (b *Builder) sortedLocked() []Entry {
	out := make([]Entry, 0, len(b.entries))
	for uid, v := range b.entries {
		uid := uid
		out = append(out, Entry{UID: &uid, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID.Lt(out[j].UID) })
	return out
}

// Serialize 规范编码：按 uid 升序的 RLP 列表，相同映射得到相同字节
func (b *Builder) Serialize() ([]byte, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	raw, err := rlp.EncodeToBytes(b.sortedLocked())
	if err != nil {
		return nil, fmt.Errorf("failed to encode block entries: %w", err)
	}
	return raw, nil
}

// Deserialize 解析并逐条回放 AddEntry，不设置构建标志
// 任一条失败（格式错误、uid 重复）整体放弃，区块内容保持不变
func (b *Builder) Deserialize(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var entries []Entry
	if err := rlp.DecodeBytes(raw, &entries); err != nil {
		return fmt.Errorf("%w: failed to decode block entries: %v", types.ErrInvalidEncoding, err)
	}
	return b.Load(entries)
}

// Load 在副本上逐条回放 AddEntry，全部成功后再替换；任一条失败时内容保持不变
func (b *Builder) Load(entries []Entry) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.tree.Load() != nil {
		return ErrAlreadyBuilt
	}
	staged := &Builder{depth: b.depth, entries: make(map[uint256.Int]common.Hash, len(b.entries)+len(entries))}
	for uid, v := range b.entries {
		staged.entries[uid] = v
	}
	for _, e := range entries {
		if err := staged.addLocked(e.UID, e.Value); err != nil {
			return fmt.Errorf("failed to add entry in the block: %w", err)
		}
	}
	b.entries = staged.entries
	return nil
}
