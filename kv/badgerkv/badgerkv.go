// Package badgerkv implements kv.Store on top of badger. badger already
// does MVCC with optimistic conflict detection at the transaction level,
// so this package is mostly a thin adapter translating between kv's
// byte-range operations and *badger.Txn, plus prometheus instrumentation.
package badgerkv

import (
	"bytes"
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/muskanmahajan37/RefineDB/kv"
)

// Store wraps a *badger.DB, exposing it as a kv.Store.
type Store struct {
	db  *badger.DB
	log *logrus.Entry
}

// Open opens (creating if necessary) a badger database at dir.
func Open(dir string, log *logrus.Entry) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is noisy; the core logs commit outcomes itself
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Begin(ctx context.Context) (kv.Transaction, error) {
	return &txn{underlying: s.db.NewTransaction(true)}, nil
}

func (s *Store) Commit(ctx context.Context, transaction kv.Transaction) error {
	t, ok := transaction.(*txn)
	if !ok {
		return &kv.Error{Code: kv.InternalErr, Message: "badgerkv: foreign transaction"}
	}
	timer := prometheus.NewTimer(commitDuration)
	defer timer.ObserveDuration()

	err := t.underlying.Commit()
	switch {
	case err == nil:
		commitsTotal.WithLabelValues("ok").Inc()
		return nil
	case err == badger.ErrConflict:
		commitsTotal.WithLabelValues("conflict").Inc()
		return &kv.Error{Code: kv.ConflictErr, Message: "badgerkv: transaction conflict"}
	default:
		commitsTotal.WithLabelValues("error").Inc()
		s.log.WithError(err).Error("badgerkv: commit failed")
		return &kv.Error{Code: kv.InternalErr, Message: err.Error()}
	}
}

func (s *Store) Discard(ctx context.Context, transaction kv.Transaction) {
	if t, ok := transaction.(*txn); ok {
		t.underlying.Discard()
	}
}

func (s *Store) Close(ctx context.Context) error { return s.db.Close() }

type txn struct {
	underlying *badger.Txn
}

func (t *txn) Get(ctx context.Context, key []byte) ([]byte, error) {
	item, err := t.underlying.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, &kv.Error{Code: kv.NotFoundErr, Message: "badgerkv: key not found"}
	}
	if err != nil {
		return nil, &kv.Error{Code: kv.InternalErr, Message: err.Error()}
	}
	return item.ValueCopy(nil)
}

func (t *txn) Put(ctx context.Context, key, value []byte) error {
	if err := t.underlying.Set(key, value); err != nil {
		return &kv.Error{Code: kv.InternalErr, Message: err.Error()}
	}
	return nil
}

func (t *txn) Delete(ctx context.Context, key []byte) error {
	if err := t.underlying.Delete(key); err != nil {
		return &kv.Error{Code: kv.InternalErr, Message: err.Error()}
	}
	return nil
}

// DeleteRange scans [start, end) and deletes every key found, since
// badger has no native range-delete within a single transaction.
func (t *txn) DeleteRange(ctx context.Context, start, end []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := t.underlying.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(start); it.Valid(); it.Next() {
		k := it.Item().KeyCopy(nil)
		if bytes.Compare(k, end) >= 0 {
			break
		}
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := t.underlying.Delete(k); err != nil {
			return &kv.Error{Code: kv.InternalErr, Message: err.Error()}
		}
	}
	return nil
}

// Scan returns every key/value pair in [start, end), the general ranged
// counterpart to ScanPrefix used when the caller wants a sub-range of a
// subspace rather than the whole thing.
func (t *txn) Scan(ctx context.Context, start, end []byte) ([]kv.KeyValue, error) {
	opts := badger.DefaultIteratorOptions
	it := t.underlying.NewIterator(opts)
	defer it.Close()

	var out []kv.KeyValue
	for it.Seek(start); it.Valid(); it.Next() {
		item := it.Item()
		k := item.KeyCopy(nil)
		if bytes.Compare(k, end) >= 0 {
			break
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, &kv.Error{Code: kv.InternalErr, Message: err.Error()}
		}
		out = append(out, kv.KeyValue{Key: k, Value: v})
	}
	return out, nil
}

func (t *txn) ScanPrefix(ctx context.Context, prefix []byte) ([]kv.KeyValue, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.underlying.NewIterator(opts)
	defer it.Close()

	var out []kv.KeyValue
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, &kv.Error{Code: kv.InternalErr, Message: err.Error()}
		}
		out = append(out, kv.KeyValue{Key: item.KeyCopy(nil), Value: v})
	}
	return out, nil
}

var (
	commitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rdbcore_badgerkv_commits_total",
		Help: "Outcomes of badgerkv transaction commits.",
	}, []string{"outcome"})

	commitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rdbcore_badgerkv_commit_duration_seconds",
		Help:    "Time spent committing a badgerkv transaction.",
		Buckets: prometheus.DefBuckets,
	})
)

// RegisterMetrics registers this package's collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{commitsTotal, commitDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
