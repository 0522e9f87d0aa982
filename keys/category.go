// keys/category.go
// Key 分类模块：区分只追加的账本数据和结算引擎的可变状态
package keys

import "strings"

// KeyCategory 定义 Key 的存储归属
type KeyCategory int

const (
	CategoryLedger KeyCategory = iota // 只追加、写入后不再修改（区块根、区块原文）
	CategoryState                     // 结算状态，只能通过 Journal 整体提交
)

// StateKeySpec 一类结算状态 key
type StateKeySpec struct {
	Prefix      string
	KeyBuilder  string
	Description string
}

// stateKeySpecs 结算状态 key 的唯一来源，与 keys.go 中的构造函数保持一致
var stateKeySpecs = []StateKeySpec{
	{Prefix: KeyExitPrefix(), KeyBuilder: "KeyExit", Description: "Exit records"},
	{Prefix: KeyCustodyPrefix(), KeyBuilder: "KeyCustody", Description: "Custodied amounts"},
	{Prefix: KeyExitChallengesPrefix(), KeyBuilder: "KeyExitChallenges", Description: "Open exit challenges"},
	{Prefix: KeyDisputesPrefix(), KeyBuilder: "KeyDisputes", Description: "Open checkpoint disputes"},
	{Prefix: KeyCheckpointPrefix(), KeyBuilder: "KeyCheckpoint", Description: "Checkpoint records"},
}

// StateKeySpecs 返回结算状态 key 列表的副本
func StateKeySpecs() []StateKeySpec {
	out := make([]StateKeySpec, len(stateKeySpecs))
	copy(out, stateKeySpecs)
	return out
}

// CategorizeKey 判断 key 的归属
func CategorizeKey(key string) KeyCategory {
	for _, spec := range stateKeySpecs {
		if strings.HasPrefix(key, spec.Prefix) {
			return CategoryState
		}
	}
	return CategoryLedger
}

// IsStatefulKey 判断 key 是否属于结算状态
func IsStatefulKey(key string) bool {
	return CategorizeKey(key) == CategoryState
}

// IsBlockKey 判断是否为区块数据
func IsBlockKey(key string) bool {
	return strings.HasPrefix(key, withVer("txblock_")) ||
		strings.HasPrefix(key, withVer("cpblock_"))
}

// IsLedgerRootKey 判断是否为账本根
func IsLedgerRootKey(key string) bool {
	return strings.HasPrefix(key, KeyLedgerRootPrefix()) || key == KeyLedgerLatest()
}

// Bucket 写队列统计使用的分组名
func Bucket(key string) string {
	for _, spec := range stateKeySpecs {
		if strings.HasPrefix(key, spec.Prefix) {
			return strings.TrimSuffix(StripVersion(spec.Prefix), "_")
		}
	}
	switch {
	case IsBlockKey(key):
		return "block"
	case IsLedgerRootKey(key):
		return "ledger"
	case key == "":
		return "empty"
	}
	return "other"
}
