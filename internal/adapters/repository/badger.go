package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Key prefixes for BadgerDB storage.
const (
	snapshotKeyPrefix = "snap:"   // snap:{player}:{date} -> snapshot json
	latestKeyPrefix   = "latest:" // latest:{player} -> date
)

const maxConflictRetries = 50

// BadgerStore persists snapshots in BadgerDB so they survive restarts.
type BadgerStore struct {
	db   *badger.DB
	view viewCache
	opts options

	closeOnce sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a badger database at path.
func NewBadgerStore(ctx context.Context, path string, opts ...Option) (*BadgerStore, error) {
	o := newOptions(opts)

	bopts := badger.DefaultOptions(path)
	if o.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithSyncWrites(o.syncWrites).WithLogger(badgerLogger{log: logger.Named("badger")})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}

	s := &BadgerStore{db: db, opts: o, stopChan: make(chan struct{})}
	startMetricsUpdater(ctx, &s.wg, s.stopChan, o.metricsUpdateInterval, s.Count)
	return s, nil
}

func snapshotKey(playerID, date string) []byte {
	return []byte(snapshotKeyPrefix + playerID + ":" + date)
}

func latestKey(playerID string) []byte {
	return []byte(latestKeyPrefix + playerID)
}

func (s *BadgerStore) Upsert(ctx context.Context, snap model.AnalyticsSnapshot) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateSnapshot(&snap); err != nil {
		return false, err
	}
	snap.Region = model.NormalizeRegion(snap.Region)
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = s.opts.now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("marshal snapshot: %w", err)
	}

	var applied bool
	for attempt := 0; ; attempt++ {
		applied, err = s.upsert(&snap, data)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			break
		}
	}
	if err != nil {
		return false, s.mapErr(err)
	}
	if !applied {
		metrics.RecordSnapshotSkipped()
		return false, nil
	}
	s.view.invalidate()
	metrics.RecordSnapshotUpserted()
	return true, nil
}

func (s *BadgerStore) upsert(snap *model.AnalyticsSnapshot, data []byte) (bool, error) {
	applied := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := snapshotKey(snap.PlayerID, snap.CalculationDate)
		cur, err := readSnapshot(txn, key)
		switch {
		case err == nil:
			if snap.SourceRevision < cur.SourceRevision {
				return nil
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set snapshot: %w", err)
		}

		latest, err := readLatestDate(txn, snap.PlayerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if snap.CalculationDate >= latest {
			if err := txn.Set(latestKey(snap.PlayerID), []byte(snap.CalculationDate)); err != nil {
				return fmt.Errorf("set latest: %w", err)
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

func readSnapshot(txn *badger.Txn, key []byte) (model.AnalyticsSnapshot, error) {
	var snap model.AnalyticsSnapshot
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("get snapshot: %w", err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &snap)
	})
	if err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func readLatestDate(txn *badger.Txn, playerID string) (string, error) {
	item, err := txn.Get(latestKey(playerID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get latest: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", fmt.Errorf("read latest: %w", err)
	}
	return string(val), nil
}

func (s *BadgerStore) Get(ctx context.Context, playerID, date string) (model.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.AnalyticsSnapshot{}, err
	}
	var snap model.AnalyticsSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		snap, err = readSnapshot(txn, snapshotKey(playerID, date))
		return err
	})
	if err != nil {
		return model.AnalyticsSnapshot{}, s.mapErr(err)
	}
	return snap, nil
}

func (s *BadgerStore) Latest(ctx context.Context, playerID string) (model.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.AnalyticsSnapshot{}, err
	}
	var snap model.AnalyticsSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		date, err := readLatestDate(txn, playerID)
		if err != nil {
			return err
		}
		snap, err = readSnapshot(txn, snapshotKey(playerID, date))
		return err
	})
	if err != nil {
		return model.AnalyticsSnapshot{}, s.mapErr(err)
	}
	return snap, nil
}

func (s *BadgerStore) LatestAll(ctx context.Context) ([]model.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.latestAll()
}

// latestAll walks the latest: prefix, which badger keeps in key order, so
// the result is already ordered by player id.
func (s *BadgerStore) latestAll() ([]model.AnalyticsSnapshot, error) {
	var out []model.AnalyticsSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(latestKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			playerID := strings.TrimPrefix(string(item.Key()), latestKeyPrefix)
			date, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read latest: %w", err)
			}
			snap, err := readSnapshot(txn, snapshotKey(playerID, string(date)))
			if err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return out, nil
}

func (s *BadgerStore) Candidates(ctx context.Context, filter model.Filter, limit int) ([]model.AnalyticsSnapshot, bool, error) {
	if limit < 1 {
		return nil, false, ErrInvalidLimit
	}
	latest, err := s.LatestAll(ctx)
	if err != nil {
		return nil, false, err
	}
	return selectCandidates(latest, filter, limit)
}

func (s *BadgerStore) TopN(ctx context.Context, n int, region, game string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	v, err := s.view.load(s.latestAll)
	if err != nil {
		return nil, err
	}
	return v.topN(n, region, game)
}

func (s *BadgerStore) Rank(ctx context.Context, playerID string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	v, err := s.view.load(s.latestAll)
	if err != nil {
		return Entry{}, err
	}
	return v.rank(playerID)
}

// Count returns the number of latest: keys. A closed store counts zero.
func (s *BadgerStore) Count(_ context.Context) int {
	n := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(latestKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *BadgerStore) mapErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrStoreClosed
	}
	return err
}

// badgerLogger routes badger's internal logging through pkg/logger.
type badgerLogger struct {
	log logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}
