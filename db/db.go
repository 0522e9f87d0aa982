package db

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	lru "github.com/hashicorp/golang-lru"

	"plasma/config"
	"plasma/logs"
)

// Manager 封装 BadgerDB 的管理器
//
// 三类数据：
//   - 账本区块根：同步写入，只追加，编号单调
//   - 区块原文：经写队列批量落盘
//   - 结算状态：Journal.Commit 在一个事务里整体写入
type Manager struct {
	Db     *badger.DB
	mu     sync.RWMutex
	Logger logs.Logger
	cfg    *config.Config

	// 队列通道，批量写的 goroutine 用它来取写请求
	writeQueueChan chan WriteTask
	// 强制刷盘通道
	forceFlushChan chan flushRequest
	// 用于通知写队列 goroutine 停止
	stopChan chan struct{}
	wg       sync.WaitGroup

	maxBatchSize  int           // 累计多少条就写一次
	flushInterval time.Duration // 间隔多久强制写一次
	queueMetrics  writeQueueMetrics

	// 账本根：lru 缓存热点区块，bitmap 记录已登记的区块号
	rootMu    sync.RWMutex
	rootCache *lru.Cache
	rootIndex *roaring64.Bitmap
	latest    uint64
}

// NewManager 打开（或创建）cfg.Database.Path 下的数据库
func NewManager(cfg *config.Config, logger logs.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logs.NewNodeLogger("db", 0)
	}
	path := cfg.Database.Path
	opts := badger.DefaultOptions(path).WithLogger(nil)
	// 应用调优参数
	opts.ValueLogFileSize = cfg.Database.ValueLogFileSize
	opts.MaxTableSize = cfg.Database.MaxTableSize
	opts.NumMemtables = cfg.Database.NumMemtables
	opts.SyncWrites = cfg.Database.SyncWrites
	// 使用 FileIO 模式减少 mmap 内存占用
	opts.TableLoadingMode = options.FileIO
	opts.ValueLogLoadingMode = options.FileIO

	// badger v2 不自动创建父目录，需要手动创建
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	rootCache, err := lru.New(cfg.Database.RootCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create root cache: %w", err)
	}

	manager := &Manager{
		Db:        db,
		Logger:    logger,
		cfg:       cfg,
		rootCache: rootCache,
		rootIndex: roaring64.New(),
	}
	if err := manager.loadRootIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("[db] opened %s with %d ledger blocks", path, manager.rootIndex.GetCardinality())
	return manager, nil
}

// View 只读事务
func (manager *Manager) View(fn func(txn *badger.Txn) error) error {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return ErrClosed
	}
	return manager.Db.View(fn)
}

// update 读写事务
func (manager *Manager) update(fn func(txn *badger.Txn) error) error {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return ErrClosed
	}
	return manager.Db.Update(fn)
}

// Get 读取原始值，不存在时返回 badger.ErrKeyNotFound
func (manager *Manager) Get(key string) ([]byte, error) {
	var val []byte
	err := manager.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Scan 按前缀遍历，fn 返回错误时停止
func (manager *Manager) Scan(prefix string, fn func(key string, val []byte) error) error {
	return manager.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 刷完写队列后关闭数据库，可重复调用
func (manager *Manager) Close() {
	// 1. 先做一次同步 flush，确保已经入队的写请求全部落盘
	if err := manager.ForceFlush(); err != nil {
		logs.Error("[db.Close] force flush failed: %v", err)
	}

	// 2. 通知写队列 goroutine 停止并等待退出
	if manager.stopChan != nil {
		select {
		case <-manager.stopChan:
		default:
			close(manager.stopChan)
		}
	}
	manager.wg.Wait()
	manager.stopChan = nil
	manager.forceFlushChan = nil
	manager.writeQueueChan = nil

	// 3. 所有队列里的数据都已经 flush 完了，可以安全关闭 DB
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if manager.Db != nil {
		_ = manager.Db.Close()
		manager.Db = nil
	}
}

// ErrClosed 数据库已关闭
var ErrClosed = errors.New("db: manager is closed")
