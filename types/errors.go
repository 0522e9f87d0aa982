package types

import "errors"

// 结算层统一的错误分类，调用方用 errors.Is 判断
var (
	// ErrAlreadyBuilt 区块已经 Build 过，不可再写入或重复构建
	ErrAlreadyBuilt = errors.New("block is already built")
	// ErrDuplicateEntry 同一个 key 重复写入（区块 uid / 挑战交易 / checkpoint 根）
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrAbsent 引用的挑战、争议或 checkpoint 不存在
	ErrAbsent = errors.New("entry is absent")
	// ErrPreconditionFailed 所有权、nonce、证明或时间检查失败
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrInvalidEncoding 持久化数据格式错误
	ErrInvalidEncoding = errors.New("invalid encoding")
)
