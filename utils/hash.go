package utils

import (
	"encoding/binary"

	"github.com/dchest/siphash"
	"github.com/holiman/uint256"
)

// siphash 固定密钥：只用于本地分条，不涉及安全性
const (
	stripeKey0 = 0x12345678
	stripeKey1 = 0x87654321
)

// UIDBytes 资产 id 的 32 字节大端编码
func UIDBytes(uid *uint256.Int) []byte {
	b := uid.Bytes32()
	return b[:]
}

// StripeIndex 把资产 id 映射到 [0, n) 的锁分条
func StripeIndex(uid *uint256.Int, n int) int {
	if n <= 1 {
		return 0
	}
	b := uid.Bytes32()
	return int(siphash.Hash(stripeKey0, stripeKey1, b[:]) % uint64(n))
}

// Uint64Bytes 8 字节大端
func Uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
