package db

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"plasma/keys"
	"plasma/settlement"
	"plasma/types"
	"plasma/utils"
)

// 落盘格式；时间统一存 UnixNano
type exitRow struct {
	UID        *uint256.Int
	State      uint8
	Deadline   uint64
	PriorTx    []byte
	PriorBlock uint64
	LastTx     []byte
	LastBlock  uint64
}

type challengeRow struct {
	Tx    []byte
	Block uint64
}

type checkpointRow struct {
	Root      common.Hash
	CreatedAt uint64
}

func uidHex(uid *uint256.Int) string {
	return hex.EncodeToString(utils.UIDBytes(uid))
}

func parseUIDHex(s string) (uint256.Int, error) {
	var uid uint256.Int
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return uid, fmt.Errorf("%w: uid %q", types.ErrInvalidEncoding, s)
	}
	uid.SetBytes32(raw)
	return uid, nil
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func fromUnixNano(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v)).UTC()
}

func encodeChallenges(entries []types.ChallengeEntry) ([]byte, error) {
	rows := make([]challengeRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, challengeRow{Tx: e.Tx, Block: e.Block})
	}
	return rlp.EncodeToBytes(rows)
}

func decodeChallenges(raw []byte) ([]types.ChallengeEntry, error) {
	var rows []challengeRow
	if err := rlp.DecodeBytes(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: challenges: %v", types.ErrInvalidEncoding, err)
	}
	entries := make([]types.ChallengeEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, types.ChallengeEntry{Exists: true, Tx: r.Tx, Block: r.Block})
	}
	return entries, nil
}

// Commit 实现 settlement.Journal：一次操作的全部变更在同一个事务中写入
func (manager *Manager) Commit(cs *settlement.Changeset) error {
	return manager.update(func(txn *badger.Txn) error {
		for uid, rec := range cs.Exits {
			uid := uid
			key := []byte(keys.KeyExit(uidHex(&uid)))
			if rec == nil {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			raw, err := rlp.EncodeToBytes(&exitRow{
				UID:        &uid,
				State:      uint8(rec.State),
				Deadline:   unixNano(rec.Deadline),
				PriorTx:    rec.PriorTx,
				PriorBlock: rec.PriorBlock,
				LastTx:     rec.LastTx,
				LastBlock:  rec.LastBlock,
			})
			if err != nil {
				return err
			}
			if err := txn.Set(key, raw); err != nil {
				return err
			}
		}

		for uid, amount := range cs.Custody {
			uid := uid
			key := []byte(keys.KeyCustody(uidHex(&uid)))
			if amount == nil {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			raw, err := rlp.EncodeToBytes(amount)
			if err != nil {
				return err
			}
			if err := txn.Set(key, raw); err != nil {
				return err
			}
		}

		for uid, entries := range cs.ExitChallenges {
			uid := uid
			if err := setChallenges(txn, keys.KeyExitChallenges(uidHex(&uid)), entries); err != nil {
				return err
			}
		}

		for key, entries := range cs.Disputes {
			uid := key.UID
			if err := setChallenges(txn, keys.KeyDisputes(uidHex(&uid), key.Root.Hex()), entries); err != nil {
				return err
			}
		}

		for _, cp := range cs.Checkpoints {
			raw, err := rlp.EncodeToBytes(&checkpointRow{Root: cp.Root, CreatedAt: unixNano(cp.CreatedAt)})
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(keys.KeyCheckpoint(cp.Root.Hex())), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// setChallenges 空列表即删除
func setChallenges(txn *badger.Txn, key string, entries []types.ChallengeEntry) error {
	if len(entries) == 0 {
		return txn.Delete([]byte(key))
	}
	raw, err := encodeChallenges(entries)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), raw)
}

// LoadSnapshot 读出全部结算状态，供 Engine.Restore 使用
func (manager *Manager) LoadSnapshot() (*settlement.Snapshot, error) {
	snap := &settlement.Snapshot{
		Custody:        make(map[uint256.Int]*big.Int),
		ExitChallenges: make(map[uint256.Int][]types.ChallengeEntry),
		Disputes:       make(map[types.CheckpointKey][]types.ChallengeEntry),
	}

	err := manager.Scan(keys.KeyExitPrefix(), func(key string, val []byte) error {
		var row exitRow
		if err := rlp.DecodeBytes(val, &row); err != nil {
			return fmt.Errorf("%w: exit %s: %v", types.ErrInvalidEncoding, key, err)
		}
		if row.UID == nil {
			return fmt.Errorf("%w: exit %s without uid", types.ErrInvalidEncoding, key)
		}
		snap.Exits = append(snap.Exits, &types.ExitRecord{
			UID:        *row.UID,
			State:      types.ExitState(row.State),
			Deadline:   fromUnixNano(row.Deadline),
			PriorTx:    row.PriorTx,
			PriorBlock: row.PriorBlock,
			LastTx:     row.LastTx,
			LastBlock:  row.LastBlock,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = manager.Scan(keys.KeyCustodyPrefix(), func(key string, val []byte) error {
		uid, err := parseUIDHex(strings.TrimPrefix(key, keys.KeyCustodyPrefix()))
		if err != nil {
			return err
		}
		amount := new(big.Int)
		if err := rlp.DecodeBytes(val, amount); err != nil {
			return fmt.Errorf("%w: custody %s: %v", types.ErrInvalidEncoding, key, err)
		}
		snap.Custody[uid] = amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = manager.Scan(keys.KeyExitChallengesPrefix(), func(key string, val []byte) error {
		uid, err := parseUIDHex(strings.TrimPrefix(key, keys.KeyExitChallengesPrefix()))
		if err != nil {
			return err
		}
		entries, err := decodeChallenges(val)
		if err != nil {
			return err
		}
		snap.ExitChallenges[uid] = entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = manager.Scan(keys.KeyDisputesPrefix(), func(key string, val []byte) error {
		uidPart, rootPart, ok := keys.ParseDisputeKey(key)
		if !ok {
			return fmt.Errorf("%w: dispute key %q", types.ErrInvalidEncoding, key)
		}
		uid, err := parseUIDHex(uidPart)
		if err != nil {
			return err
		}
		entries, err := decodeChallenges(val)
		if err != nil {
			return err
		}
		snap.Disputes[types.CheckpointKey{UID: uid, Root: common.HexToHash(rootPart)}] = entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = manager.Scan(keys.KeyCheckpointPrefix(), func(key string, val []byte) error {
		var row checkpointRow
		if err := rlp.DecodeBytes(val, &row); err != nil {
			return fmt.Errorf("%w: checkpoint %s: %v", types.ErrInvalidEncoding, key, err)
		}
		snap.Checkpoints = append(snap.Checkpoints, types.CheckpointRecord{
			Root:      row.Root,
			CreatedAt: fromUnixNano(row.CreatedAt),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

var _ settlement.Journal = (*Manager)(nil)
var _ settlement.BlockLedger = (*Manager)(nil)
