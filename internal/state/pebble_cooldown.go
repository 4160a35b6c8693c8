// Package state persists engine state that must survive a restart. Today
// that is the low-stock alert cooldown ledger.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"storefront/internal/scheduler"
	"storefront/internal/types"
)

const cooldownPrefix = "cooldown/product/"

type cooldownRecord struct {
	ProductID  int64     `json:"product_id"`
	NotifiedAt time.Time `json:"notified_at"`
}

// PebbleCooldownStore is a scheduler.CooldownStore backed by an on-disk
// Pebble database. Writes are synced so a crash right after an alert cannot
// re-open the cooldown.
type PebbleCooldownStore struct {
	db *pebble.DB
}

var _ scheduler.CooldownStore = (*PebbleCooldownStore)(nil)

// OpenPebbleCooldownStore opens (or creates) the store at dir.
func OpenPebbleCooldownStore(dir string) (*PebbleCooldownStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to open cooldown store", err)
	}
	return &PebbleCooldownStore{db: db}, nil
}

func cooldownKey(productID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", cooldownPrefix, productID))
}

func (s *PebbleCooldownStore) LastNotified(_ context.Context, productID int64) (time.Time, bool, error) {
	val, closer, err := s.db.Get(cooldownKey(productID))
	if errors.Is(err, pebble.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to read cooldown", err)
	}
	defer closer.Close()

	var rec cooldownRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return time.Time{}, false, types.NewAppError(types.ErrCodeInternalCooldownStore, "corrupt cooldown record", err)
	}
	return rec.NotifiedAt, true, nil
}

func (s *PebbleCooldownStore) RecordNotified(_ context.Context, productID int64, at time.Time) error {
	data, err := json.Marshal(cooldownRecord{ProductID: productID, NotifiedAt: at.UTC()})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to encode cooldown", err)
	}
	if err := s.db.Set(cooldownKey(productID), data, pebble.Sync); err != nil {
		return types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to write cooldown", err)
	}
	return nil
}

// Prune deletes records older than now minus window; they can no longer
// suppress an alert. It returns the number of records removed.
func (s *PebbleCooldownStore) Prune(now time.Time, window time.Duration) (int, error) {
	prefix := []byte(cooldownPrefix)
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: []byte(cooldownPrefix[:len(cooldownPrefix)-1] + "0"),
	})
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to scan cooldowns", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	removed := 0
	for it.First(); it.Valid(); it.Next() {
		var rec cooldownRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil || scheduler.CooldownElapsed(now, rec.NotifiedAt, true, window) {
			key := append([]byte(nil), it.Key()...)
			if err := batch.Delete(key, nil); err != nil {
				it.Close()
				return 0, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to stage delete", err)
			}
			removed++
		}
	}
	if err := it.Close(); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to scan cooldowns", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to prune cooldowns", err)
	}
	return removed, nil
}

// Close flushes and closes the database.
func (s *PebbleCooldownStore) Close() error {
	return s.db.Close()
}
