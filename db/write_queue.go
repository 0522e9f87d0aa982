package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v2"

	"plasma/keys"
	"plasma/logs"
)

// 写队列只承载只追加的数据（区块原文等）；结算状态必须走 Journal
var ErrStateKeyInQueue = errors.New("db: settlement state cannot be written through the write queue")

const writeQueueSize = 1024

type writeQueueMetrics struct {
	enqueueTotal     uint64
	flushBatchTotal  uint64
	flushedTaskTotal uint64
	flushErrTotal    uint64
	forceFlushTotal  uint64
	buckets          sync.Map // keys.Bucket -> *atomic.Uint64
}

// QueueStats 写队列统计快照
type QueueStats struct {
	Enqueued   uint64
	Batches    uint64
	Flushed    uint64
	FlushErrs  uint64
	ForceFlush uint64
	Buckets    []string // "bucket=count"，按数量降序
}

// InitWriteQueue 启动批量写 goroutine；未启动时写请求直接同步落盘
func (manager *Manager) InitWriteQueue(maxBatchSize int, flushInterval time.Duration) {
	if maxBatchSize <= 0 {
		maxBatchSize = 256
	}
	if flushInterval <= 0 {
		flushInterval = 200 * time.Millisecond
	}
	manager.maxBatchSize = maxBatchSize
	manager.flushInterval = flushInterval
	manager.writeQueueChan = make(chan WriteTask, writeQueueSize)
	manager.forceFlushChan = make(chan flushRequest, 1)
	manager.stopChan = make(chan struct{})
	manager.wg.Add(1)
	go manager.runWriteQueue()
}

func (manager *Manager) runWriteQueue() {
	defer manager.wg.Done()

	batch := make([]WriteTask, 0, manager.maxBatchSize)
	ticker := time.NewTicker(manager.flushInterval)
	defer ticker.Stop()

	flushCurrentBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		count := len(batch)
		err := manager.flushBatch(batch)
		atomic.AddUint64(&manager.queueMetrics.flushBatchTotal, 1)
		atomic.AddUint64(&manager.queueMetrics.flushedTaskTotal, uint64(count))
		if err != nil {
			atomic.AddUint64(&manager.queueMetrics.flushErrTotal, 1)
		}
		batch = batch[:0]
		return err
	}

	for {
		select {
		case <-manager.stopChan:
			// 退出前先排空队列，再刷掉最后一批
			batch = manager.drainWriteQueue(batch)
			err := flushCurrentBatch()
			manager.resolvePendingForceFlush(err)
			return

		case task := <-manager.writeQueueChan:
			batch = append(batch, task)
			if len(batch) >= manager.maxBatchSize {
				if err := flushCurrentBatch(); err != nil {
					logs.Error("[runWriteQueue] flush by size failed: %v", err)
				}
			}

		case <-ticker.C:
			batch = manager.drainWriteQueue(batch)
			if err := flushCurrentBatch(); err != nil {
				logs.Error("[runWriteQueue] flush by ticker failed: %v", err)
			}

		case req := <-manager.forceFlushChan:
			// 同步 flush：排空已入队写请求并等待落盘完成
			atomic.AddUint64(&manager.queueMetrics.forceFlushTotal, 1)
			batch = manager.drainWriteQueue(batch)
			manager.finishForceFlush(req, flushCurrentBatch())
		}
	}
}

// ForceFlush 把已入队的写请求同步落盘
func (manager *Manager) ForceFlush() error {
	if manager.forceFlushChan == nil {
		return nil
	}
	req := flushRequest{done: make(chan error, 1)}
	select {
	case manager.forceFlushChan <- req:
	case <-manager.stopChan:
		return fmt.Errorf("write queue already stopped")
	}
	select {
	case err := <-req.done:
		return err
	case <-manager.stopChan:
		select {
		case err := <-req.done:
			return err
		default:
		}
		return fmt.Errorf("write queue stopped before flush completed")
	}
}

func (manager *Manager) drainWriteQueue(batch []WriteTask) []WriteTask {
	for {
		select {
		case task := <-manager.writeQueueChan:
			batch = append(batch, task)
		default:
			return batch
		}
	}
}

func (manager *Manager) finishForceFlush(req flushRequest, err error) {
	req.done <- err
	close(req.done)
}

func (manager *Manager) resolvePendingForceFlush(err error) {
	for {
		select {
		case req := <-manager.forceFlushChan:
			manager.finishForceFlush(req, err)
		default:
			return
		}
	}
}

// flushBatch 用 WriteBatch 提交；事务过大时对半拆分重试
func (manager *Manager) flushBatch(batch []WriteTask) error {
	if len(batch) == 0 {
		return nil
	}
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return ErrClosed
	}
	return manager.flushRange(batch)
}

func (manager *Manager) flushRange(sub []WriteTask) error {
	wb := manager.Db.NewWriteBatch()
	defer wb.Cancel()

	tooBig := func(err error) bool {
		return errors.Is(err, badger.ErrTxnTooBig) || strings.Contains(err.Error(), "Txn is too big")
	}
	split := func() error {
		if len(sub) == 1 {
			return fmt.Errorf("single entry too big for badger: key=%q size=%d bytes", sub[0].Key, len(sub[0].Value))
		}
		mid := len(sub) / 2
		if err := manager.flushRange(sub[:mid]); err != nil {
			return err
		}
		return manager.flushRange(sub[mid:])
	}

	for _, task := range sub {
		var err error
		switch task.Op {
		case OpSet:
			err = wb.Set(task.Key, task.Value)
		case OpDelete:
			err = wb.Delete(task.Key)
		}
		if err != nil {
			if tooBig(err) {
				return split()
			}
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		if tooBig(err) {
			return split()
		}
		logs.Error("[flushBatch] %d entries: %v", len(sub), err)
		return err
	}
	return nil
}

// EnqueueSet 投递写请求
func (manager *Manager) EnqueueSet(key string, value []byte) error {
	return manager.enqueue(WriteTask{Key: []byte(key), Value: value, Op: OpSet})
}

// EnqueueDelete 投递删除请求
func (manager *Manager) EnqueueDelete(key string) error {
	return manager.enqueue(WriteTask{Key: []byte(key), Op: OpDelete})
}

func (manager *Manager) enqueue(task WriteTask) error {
	key := string(task.Key)
	if keys.IsStatefulKey(key) {
		return fmt.Errorf("%w: %s", ErrStateKeyInQueue, key)
	}
	manager.countBucket(keys.Bucket(key))
	atomic.AddUint64(&manager.queueMetrics.enqueueTotal, 1)

	if manager.writeQueueChan == nil {
		return manager.flushBatch([]WriteTask{task})
	}
	select {
	case manager.writeQueueChan <- task:
		return nil
	case <-manager.stopChan:
		return fmt.Errorf("write queue already stopped")
	}
}

func (manager *Manager) countBucket(bucket string) {
	val, _ := manager.queueMetrics.buckets.LoadOrStore(bucket, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// QueueStats 当前统计
func (manager *Manager) QueueStats() QueueStats {
	m := &manager.queueMetrics
	out := QueueStats{
		Enqueued:   atomic.LoadUint64(&m.enqueueTotal),
		Batches:    atomic.LoadUint64(&m.flushBatchTotal),
		Flushed:    atomic.LoadUint64(&m.flushedTaskTotal),
		FlushErrs:  atomic.LoadUint64(&m.flushErrTotal),
		ForceFlush: atomic.LoadUint64(&m.forceFlushTotal),
	}
	type counter struct {
		key   string
		value uint64
	}
	var values []counter
	m.buckets.Range(func(k, v any) bool {
		values = append(values, counter{key: k.(string), value: v.(*atomic.Uint64).Load()})
		return true
	})
	sort.Slice(values, func(i, j int) bool {
		if values[i].value != values[j].value {
			return values[i].value > values[j].value
		}
		return values[i].key < values[j].key
	})
	for _, c := range values {
		out.Buckets = append(out.Buckets, fmt.Sprintf("%s=%d", c.key, c.value))
	}
	return out
}
