package utils

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"plasma/logs"
)

// KeyManager 保存一个签名账户的私钥和地址
type KeyManager struct {
	mu         sync.RWMutex
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// InitKey 从 32 字节 hex 私钥初始化（可带 0x 前缀）
func (km *KeyManager) InitKey(priKey string) error {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(priKey, "0x"))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	km.set(priv)
	logs.Debug("[KeyManager] InitKey success. Address=%s", km.Address().Hex())
	return nil
}

// Generate 生成新的随机私钥
func (km *KeyManager) Generate() error {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	km.set(priv)
	return nil
}

func (km *KeyManager) set(priv *ecdsa.PrivateKey) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.privateKey = priv
	km.address = crypto.PubkeyToAddress(priv.PublicKey)
}

// PrivateKey 当前私钥，未初始化时为 nil
func (km *KeyManager) PrivateKey() *ecdsa.PrivateKey {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.privateKey
}

// GetPrivateKey 私钥 hex（不带 0x）
func (km *KeyManager) GetPrivateKey() string {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.privateKey == nil {
		return ""
	}
	return common.Bytes2Hex(crypto.FromECDSA(km.privateKey))
}

// Address 由私钥推导的地址
func (km *KeyManager) Address() common.Address {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.address
}
