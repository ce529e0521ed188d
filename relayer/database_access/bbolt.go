package databaseaccess

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Ethernal-Tech/evm-deposit-relayer/common"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"go.etcd.io/bbolt"
)

var (
	processedEventsBucket = []byte("ProcessedEvents")
	scannedBlocksBucket   = []byte("ScannedBlocks")
	cursorBucket          = []byte("Cursor")

	cursorKey = []byte("lastScannedBlock")
)

// BBoltDatabase is the durable idempotency ledger. Every mutation is wrapped
// in a bbolt write transaction, which is fsynced before Update returns.
type BBoltDatabase struct {
	db *bbolt.DB
}

var _ core.Database = (*BBoltDatabase)(nil)

func (bd *BBoltDatabase) Init(filePath string) error {
	if err := common.CreateDirectoryIfNotExists(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("could not create db directory: %w", err)
	}

	db, err := bbolt.Open(filePath, 0660, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	bd.db = db

	return db.Update(func(tx *bbolt.Tx) error {
		for _, bn := range [][]byte{processedEventsBucket, scannedBlocksBucket, cursorBucket} {
			_, err := tx.CreateBucketIfNotExists(bn)
			if err != nil {
				return fmt.Errorf("could not create bucket: %s, err: %w", string(bn), err)
			}
		}

		return nil
	})
}

func (bd *BBoltDatabase) Close() error {
	return bd.db.Close()
}

// HasProcessed reports whether the key already reached a terminal outcome.
// Pending records do not count: after a crash they must be picked up again.
func (bd *BBoltDatabase) HasProcessed(key core.EventKey) (bool, error) {
	record, err := bd.GetProcessedEvent(key)
	if err != nil {
		return false, err
	}

	return record != nil && record.Status != core.StatusPending, nil
}

func (bd *BBoltDatabase) GetProcessedEvent(key core.EventKey) (*core.ProcessedRecord, error) {
	var result *core.ProcessedRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(processedEventsBucket).Get(key.Bytes()); len(data) > 0 {
			result = &core.ProcessedRecord{}

			return json.Unmarshal(data, result)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetProcessedEvents(threshold int) ([]*core.ProcessedRecord, error) {
	var result []*core.ProcessedRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(processedEventsBucket).Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			record := &core.ProcessedRecord{}

			if err := json.Unmarshal(v, record); err != nil {
				return err
			}

			result = append(result, record)
			if threshold > 0 && len(result) == threshold {
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetConfirmedEventsAbove(height uint64) ([]*core.ProcessedRecord, error) {
	var result []*core.ProcessedRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(processedEventsBucket).Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			record := &core.ProcessedRecord{}

			if err := json.Unmarshal(v, record); err != nil {
				return err
			}

			if record.Status == core.StatusConfirmed && record.BlockNumber > height {
				result = append(result, record)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) MarkPending(key core.EventKey, blockNumber uint64) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(processedEventsBucket)

		record := &core.ProcessedRecord{}

		if data := bucket.Get(key.Bytes()); len(data) > 0 {
			if err := json.Unmarshal(data, record); err != nil {
				return err
			}

			if record.Status == core.StatusConfirmed {
				return core.ErrAlreadyProcessed
			}

			// a Pending record left over from a previous run stays Pending,
			// only the block number is refreshed
			record.BlockNumber = blockNumber
		} else {
			record = &core.ProcessedRecord{
				Key:         key,
				BlockNumber: blockNumber,
				Status:      core.StatusPending,
				FirstSeenAt: time.Now().UTC(),
			}
		}

		return putRecord(bucket, record)
	})
}

func (bd *BBoltDatabase) MarkFailed(key core.EventKey, reason string) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(processedEventsBucket)

		record := &core.ProcessedRecord{Key: key, FirstSeenAt: time.Now().UTC()}

		if data := bucket.Get(key.Bytes()); len(data) > 0 {
			if err := json.Unmarshal(data, record); err != nil {
				return err
			}

			if record.Status == core.StatusConfirmed {
				return core.ErrAlreadyProcessed
			}
		}

		record.Status = core.StatusFailed
		record.RejectReason = reason
		record.FinalizedAt = time.Now().UTC()

		return putRecord(bucket, record)
	})
}

// CommitProcessed is idempotent: committing an already Confirmed key with the
// same destination hash is a no-op.
func (bd *BBoltDatabase) CommitProcessed(
	key core.EventKey, destinationTxHash string, simulated bool,
) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(processedEventsBucket)

		record := &core.ProcessedRecord{Key: key, FirstSeenAt: time.Now().UTC()}

		if data := bucket.Get(key.Bytes()); len(data) > 0 {
			if err := json.Unmarshal(data, record); err != nil {
				return err
			}

			if record.Status == core.StatusConfirmed {
				return nil
			}
		}

		record.Status = core.StatusConfirmed
		record.DestinationTxHash = destinationTxHash
		record.Simulated = simulated
		record.RejectReason = ""
		record.FinalizedAt = time.Now().UTC()

		return putRecord(bucket, record)
	})
}

// RollbackPending removes Pending records for blocks above the given height.
// Confirmed and Failed records are never removed.
func (bd *BBoltDatabase) RollbackPending(aboveHeight uint64) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(processedEventsBucket).Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			record := &core.ProcessedRecord{}

			if err := json.Unmarshal(v, record); err != nil {
				return err
			}

			if record.Status == core.StatusPending && record.BlockNumber > aboveHeight {
				if err := cursor.Delete(); err != nil {
					return fmt.Errorf("could not remove pending record %s: %w", record.Key, err)
				}
			}
		}

		return nil
	})
}

func (bd *BBoltDatabase) GetCursor() (uint64, error) {
	var result uint64

	err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(cursorBucket).Get(cursorKey); len(data) == 8 {
			result = binary.BigEndian.Uint64(data)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return result, nil
}

func (bd *BBoltDatabase) UpdateCursor(value uint64) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(cursorBucket).Put(cursorKey, uint64Bytes(value)); err != nil {
			return fmt.Errorf("cursor write error: %w", err)
		}

		return nil
	})
}

func (bd *BBoltDatabase) AddScannedBlocks(blocks []core.ScannedBlock) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(scannedBlocksBucket)

		for _, block := range blocks {
			bytes, err := json.Marshal(block)
			if err != nil {
				return fmt.Errorf("could not marshal scanned block: %w", err)
			}

			if err := bucket.Put(uint64Bytes(block.Height), bytes); err != nil {
				return fmt.Errorf("scanned block write error: %w", err)
			}
		}

		return nil
	})
}

func (bd *BBoltDatabase) GetScannedBlock(height uint64) (*core.ScannedBlock, error) {
	var result *core.ScannedBlock

	err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(scannedBlocksBucket).Get(uint64Bytes(height)); len(data) > 0 {
			result = &core.ScannedBlock{}

			return json.Unmarshal(data, result)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) RollbackScannedBlocks(fromHeight uint64) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(scannedBlocksBucket).Cursor()

		for k, _ := cursor.Seek(uint64Bytes(fromHeight)); k != nil; k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("could not remove scanned block: %w", err)
			}
		}

		return nil
	})
}

func (bd *BBoltDatabase) PruneScannedBlocks(belowHeight uint64) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(scannedBlocksBucket).Cursor()

		for k, _ := cursor.First(); k != nil && binary.BigEndian.Uint64(k) < belowHeight; k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("could not prune scanned block: %w", err)
			}
		}

		return nil
	})
}

func uint64Bytes(value uint64) []byte {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, value)

	return bytes
}

func putRecord(bucket *bbolt.Bucket, record *core.ProcessedRecord) error {
	bytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not marshal processed record: %w", err)
	}

	if err := bucket.Put(record.Key.Bytes(), bytes); err != nil {
		return fmt.Errorf("processed record write error: %w", err)
	}

	return nil
}
