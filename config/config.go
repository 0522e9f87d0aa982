// config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Settlement SettlementConfig `yaml:"settlement"`
	Database   DatabaseConfig   `yaml:"database"`
	Tree       TreeConfig       `yaml:"tree"`
	Stats      StatsConfig      `yaml:"stats"`
}

// SettlementConfig 退出/挑战状态机配置
type SettlementConfig struct {
	// 挑战期（所有资产、所有 checkpoint 共用的固定常量）
	ExitChallengePeriod       time.Duration `yaml:"exit_challenge_period"`       // 14 * 24h
	CheckpointChallengePeriod time.Duration `yaml:"checkpoint_challenge_period"` // 7 * 24h

	// 单 key 单写者：按资产 id 哈希分条的锁数量
	LockStripes int `yaml:"lock_stripes"` // 256

	// 解码后的交易缓存
	TxCacheSize int `yaml:"tx_cache_size"` // 4096
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `yaml:"path"` // "./data"

	// BadgerDB配置
	ValueLogFileSize int64 `yaml:"value_log_file_size"` // 64 << 20 (64MB)
	MaxTableSize     int64 `yaml:"max_table_size"`      // 8 << 20
	NumMemtables     int   `yaml:"num_memtables"`       // 2
	SyncWrites       bool  `yaml:"sync_writes"`         // true

	// 缓存配置
	RootCacheSize int `yaml:"root_cache_size"` // 1024
}

// TreeConfig 稀疏默克尔树配置
type TreeConfig struct {
	Depth int `yaml:"depth"` // 256，覆盖完整的 uint256 id 空间
}

// StatsConfig 延迟统计
type StatsConfig struct {
	LatencySamples int `yaml:"latency_samples"` // 2048
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Settlement: SettlementConfig{
			ExitChallengePeriod:       14 * 24 * time.Hour,
			CheckpointChallengePeriod: 7 * 24 * time.Hour,
			LockStripes:               256,
			TxCacheSize:               4096,
		},
		Database: DatabaseConfig{
			Path:             "./data",
			ValueLogFileSize: 64 << 20,
			MaxTableSize:     8 << 20,
			NumMemtables:     2,
			SyncWrites:       true,
			RootCacheSize:    1024,
		},
		Tree: TreeConfig{
			Depth: 256,
		},
		Stats: StatsConfig{
			LatencySamples: 2048,
		},
	}
}

// LoadFromFile 从 YAML 文件加载配置，文件里没写的字段保留默认值
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	if c.Settlement.ExitChallengePeriod <= 0 {
		return fmt.Errorf("ExitChallengePeriod must be positive")
	}
	if c.Settlement.CheckpointChallengePeriod <= 0 {
		return fmt.Errorf("CheckpointChallengePeriod must be positive")
	}
	if c.Settlement.LockStripes <= 0 {
		return fmt.Errorf("LockStripes must be positive")
	}
	if c.Settlement.TxCacheSize <= 0 {
		return fmt.Errorf("TxCacheSize must be positive")
	}
	if c.Database.RootCacheSize <= 0 {
		return fmt.Errorf("RootCacheSize must be positive")
	}
	if c.Tree.Depth <= 0 || c.Tree.Depth > 256 {
		return fmt.Errorf("Tree.Depth must be in (0, 256], got %d", c.Tree.Depth)
	}
	return nil
}
