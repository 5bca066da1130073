// Package snapshots persists published position snapshots in a WAL so
// the dashboard can replay recent history after a restart.
package snapshots

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/collat/internal/domain"
)

const (
	DefaultDir   = "./wal/snapshots"
	segmentLimit = 1000
	maxSegments  = 20

	snapshotKeyPrefix = "snapshot_"
)

// Record is one persisted snapshot with its WAL index.
type Record struct {
	Index    uint64
	Snapshot domain.PositionSnapshot
}

// WALStore persists position snapshots in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed snapshot store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the snapshot to the WAL.
func (s *WALStore) Save(snapshot domain.PositionSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("snapshot store is not initialized")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	key := snapshotKeyPrefix + snapshot.Account.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// SnapshotsAfter returns all snapshots written after the provided WAL
// index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}

		var snapshot domain.PositionSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrap(err, "decode snapshot")
		}
		records = append(records, Record{Index: idx, Snapshot: snapshot})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
