// Package dispute 按作用域维护可删除的挑战集合
//
// 每个作用域是一个紧凑数组 + 反向索引：
//   - Exists / Add / Remove 都是 O(1)
//   - Remove 时用最后一个元素填补空位（swap-with-last），槽位 1..Count 之间不会出现空洞
//   - 最后一个元素被删除时整个作用域被清空，与从未使用过的作用域没有区别
//
// 对外暴露的槽位号从 1 开始，0 表示不存在。
package dispute

import (
	"fmt"
	"sync"

	"plasma/types"
)

type scopeSet struct {
	entries []types.ChallengeEntry
	index   map[string]int // 挑战交易字节 -> entries 下标
}

// Registry 以 K 为作用域的挑战登记表，并发安全
type Registry[K comparable] struct {
	mu     sync.RWMutex
	scopes map[K]*scopeSet
}

// NewRegistry 创建空的登记表
func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{scopes: make(map[K]*scopeSet)}
}

// Exists 挑战是否在作用域内
func (r *Registry[K]) Exists(scope K, tx []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.lookup(scope, tx)
	return ok
}

func (r *Registry[K]) lookup(scope K, tx []byte) (int, bool) {
	s, ok := r.scopes[scope]
	if !ok {
		return 0, false
	}
	pos, ok := s.index[string(tx)]
	return pos, ok
}

// Add 登记挑战，已存在时返回 ErrDuplicateEntry；返回分配到的槽位（从 1 开始）
func (r *Registry[K]) Add(scope K, tx []byte, block uint64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(scope, tx, block)
}

func (r *Registry[K]) addLocked(scope K, tx []byte, block uint64) (int, error) {
	s, ok := r.scopes[scope]
	if !ok {
		s = &scopeSet{index: make(map[string]int)}
		r.scopes[scope] = s
	}
	if _, dup := s.index[string(tx)]; dup {
		return 0, fmt.Errorf("%w: challenge already registered", types.ErrDuplicateEntry)
	}
	s.entries = append(s.entries, types.ChallengeEntry{
		Exists: true,
		Tx:     append([]byte(nil), tx...),
		Block:  block,
	})
	pos := len(s.entries) - 1
	s.index[string(tx)] = pos
	return pos + 1, nil
}

// Remove 删除挑战，不存在时返回 ErrAbsent
func (r *Registry[K]) Remove(scope K, tx []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.lookup(scope, tx)
	if !ok {
		return fmt.Errorf("%w: challenge not found", types.ErrAbsent)
	}
	s := r.scopes[scope]
	if len(s.entries) == 1 {
		// 最后一个元素：整个作用域复位
		delete(r.scopes, scope)
		return nil
	}

	last := len(s.entries) - 1
	if pos != last {
		moved := s.entries[last]
		s.entries[pos] = moved
		s.index[string(moved.Tx)] = pos
	}
	s.entries[last] = types.ChallengeEntry{}
	s.entries = s.entries[:last]
	delete(s.index, string(tx))
	return nil
}

// Count 作用域内的挑战数量
func (r *Registry[K]) Count(scope K) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.scopes[scope]; ok {
		return len(s.entries)
	}
	return 0
}

// Get 读取挑战记录
func (r *Registry[K]) Get(scope K, tx []byte) (types.ChallengeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.lookup(scope, tx)
	if !ok {
		return types.ChallengeEntry{}, false
	}
	return cloneEntry(r.scopes[scope].entries[pos]), true
}

// Slot 挑战所在槽位（从 1 开始），不存在时为 0
func (r *Registry[K]) Slot(scope K, tx []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.lookup(scope, tx)
	if !ok {
		return 0
	}
	return pos + 1
}

// Entries 按槽位顺序返回作用域内全部挑战的拷贝
func (r *Registry[K]) Entries(scope K) []types.ChallengeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]types.ChallengeEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Snapshot 等同于 Entries，语义上用于回滚前保存现场
func (r *Registry[K]) Snapshot(scope K) []types.ChallengeEntry {
	return r.Entries(scope)
}

// Restore 用给定列表整体替换作用域，槽位顺序与列表一致
// 列表中有重复挑战时返回错误，作用域保持原状
func (r *Registry[K]) Restore(scope K, entries []types.ChallengeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(entries) == 0 {
		delete(r.scopes, scope)
		return nil
	}
	s := &scopeSet{
		entries: make([]types.ChallengeEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, dup := s.index[string(e.Tx)]; dup {
			return fmt.Errorf("%w: challenge listed twice", types.ErrDuplicateEntry)
		}
		s.index[string(e.Tx)] = len(s.entries)
		s.entries = append(s.entries, types.ChallengeEntry{
			Exists: true,
			Tx:     append([]byte(nil), e.Tx...),
			Block:  e.Block,
		})
	}
	r.scopes[scope] = s
	return nil
}

// Scopes 当前非空的作用域数量
func (r *Registry[K]) Scopes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scopes)
}

func cloneEntry(e types.ChallengeEntry) types.ChallengeEntry {
	e.Tx = append([]byte(nil), e.Tx...)
	return e
}
