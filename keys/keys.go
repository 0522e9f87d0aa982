// keys/keys.go
// 统一的 Key 定义包，供结算引擎的持久化层使用
package keys

import (
	"fmt"
	"strings"
)

// ===================== 版本控制 =====================
// 设置全局 Key 版本前缀（例如 "v1" → 产出 "v1_<key>"）。
const KeyVersion = "v1"

// withVer 把版本号拼到最前面（保持下划线风格：v1_<...>）
func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// StripVersion 去掉版本前缀
func StripVersion(prefixed string) string {
	if KeyVersion == "" {
		return prefixed
	}
	return strings.TrimPrefix(prefixed, KeyVersion+"_")
}

// padUint 定长十进制，保证按字典序遍历时与数值顺序一致
func padUint(v uint64) string {
	return fmt.Sprintf("%020d", v)
}

// ===================== 账本相关（只追加） =====================

// KeyLedgerRoot 账本区块根
// 例：v1_ledger_root_00000000000000000010
func KeyLedgerRoot(blockNumber uint64) string {
	return withVer("ledger_root_" + padUint(blockNumber))
}

// KeyLedgerRootPrefix 账本区块根前缀
func KeyLedgerRootPrefix() string {
	return withVer("ledger_root_")
}

// KeyLedgerLatest 最新登记的账本区块号
// 例：v1_ledger_latest
func KeyLedgerLatest() string {
	return withVer("ledger_latest")
}

// KeyTxBlock 交易区块原文
// 例：v1_txblock_00000000000000000010
func KeyTxBlock(blockNumber uint64) string {
	return withVer("txblock_" + padUint(blockNumber))
}

// KeyCheckpointBlock checkpoint 区块原文，按根索引
// 例：v1_cpblock_<rootHex>
func KeyCheckpointBlock(rootHex string) string {
	return withVer("cpblock_" + rootHex)
}

// ===================== 结算状态（可变） =====================

// KeyExit 退出记录
// 例：v1_exitrec_<uidHex>
func KeyExit(uidHex string) string {
	return withVer("exitrec_" + uidHex)
}

// KeyExitPrefix 退出记录前缀
func KeyExitPrefix() string {
	return withVer("exitrec_")
}

// KeyCustody 托管金额
// 例：v1_custody_<uidHex>
func KeyCustody(uidHex string) string {
	return withVer("custody_" + uidHex)
}

// KeyCustodyPrefix 托管金额前缀
func KeyCustodyPrefix() string {
	return withVer("custody_")
}

// KeyExitChallenges 资产上挂起的退出挑战（整列表一个 value，保持槽位顺序）
// 例：v1_exitch_<uidHex>
func KeyExitChallenges(uidHex string) string {
	return withVer("exitch_" + uidHex)
}

// KeyExitChallengesPrefix 退出挑战前缀
func KeyExitChallengesPrefix() string {
	return withVer("exitch_")
}

// KeyDisputes (资产, checkpoint) 上挂起的争议
// 例：v1_dispute_<uidHex>_<rootHex>
func KeyDisputes(uidHex, rootHex string) string {
	return withVer(fmt.Sprintf("dispute_%s_%s", uidHex, rootHex))
}

// KeyDisputesPrefix 争议前缀
func KeyDisputesPrefix() string {
	return withVer("dispute_")
}

// KeyCheckpoint checkpoint 记录
// 例：v1_checkpoint_<rootHex>
func KeyCheckpoint(rootHex string) string {
	return withVer("checkpoint_" + rootHex)
}

// KeyCheckpointPrefix checkpoint 记录前缀
func KeyCheckpointPrefix() string {
	return withVer("checkpoint_")
}

// ParseDisputeKey 从争议 key 中拆出 uid 与根
func ParseDisputeKey(key string) (uidHex, rootHex string, ok bool) {
	rest := strings.TrimPrefix(key, KeyDisputesPrefix())
	if rest == key {
		return "", "", false
	}
	idx := strings.IndexByte(rest, '_')
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
