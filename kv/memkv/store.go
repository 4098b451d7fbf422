// Package memkv is an in-memory reference implementation of kv.Store: a
// single mutex-guarded map plus copy-on-begin snapshots over an opaque
// ordered byte-keyed space. Every committed write is
// appended to a log so Commit can detect read/write conflicts against
// any transaction that started before it (spec.md §4.5, §4.6).
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/muskanmahajan37/RefineDB/kv"
)

type logEntry struct {
	key     []byte
	version uint64
}

// Store is a single-process, in-memory kv.Store. It is not durable and
// is intended for tests and local development, the same role the
// teacher's inmem store plays relative to its disk-backed counterpart.
type Store struct {
	mu            sync.Mutex
	data          map[string][]byte
	globalVersion uint64
	writeLog      []logEntry
}

func NewStore() *Store {
	return &Store{data: map[string][]byte{}}
}

func (s *Store) Begin(ctx context.Context) (kv.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	return &txn{
		store:        s,
		snapshot:     snapshot,
		startVersion: s.globalVersion,
		writes:       map[string][]byte{},
		deleted:      map[string]bool{},
		pointReads:   map[string]bool{},
	}, nil
}

func (s *Store) Commit(ctx context.Context, transaction kv.Transaction) error {
	t, ok := transaction.(*txn)
	if !ok {
		return &kv.Error{Code: kv.InternalErr, Message: "memkv: foreign transaction"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.writeLog {
		if e.version <= t.startVersion {
			continue
		}
		if t.pointReads[string(e.key)] {
			return &kv.Error{Code: kv.ConflictErr, Message: "memkv: conflicting point read"}
		}
		for _, p := range t.prefixReads {
			if bytes.HasPrefix(e.key, p) {
				return &kv.Error{Code: kv.ConflictErr, Message: "memkv: conflicting prefix read"}
			}
		}
		for _, r := range t.rangeReads {
			if bytes.Compare(e.key, r[0]) >= 0 && bytes.Compare(e.key, r[1]) < 0 {
				return &kv.Error{Code: kv.ConflictErr, Message: "memkv: conflicting range read"}
			}
		}
	}

	newVersion := s.globalVersion + 1
	for k, v := range t.writes {
		s.data[k] = v
		s.writeLog = append(s.writeLog, logEntry{key: []byte(k), version: newVersion})
	}
	for k := range t.deleted {
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			s.writeLog = append(s.writeLog, logEntry{key: []byte(k), version: newVersion})
		}
	}
	s.globalVersion = newVersion
	return nil
}

func (s *Store) Discard(ctx context.Context, transaction kv.Transaction) {}

func (s *Store) Close(ctx context.Context) error { return nil }

// txn is a single transaction's working set: a frozen snapshot of the
// store at Begin time, plus a local overlay of writes/deletes applied
// only if Commit succeeds.
type txn struct {
	store        *Store
	snapshot     map[string][]byte
	startVersion uint64

	writes  map[string][]byte
	deleted map[string]bool

	pointReads  map[string]bool
	prefixReads [][]byte
	rangeReads  [][2][]byte
}

func (t *txn) effective(key string) ([]byte, bool) {
	if t.deleted[key] {
		return nil, false
	}
	if v, ok := t.writes[key]; ok {
		return v, true
	}
	v, ok := t.snapshot[key]
	return v, ok
}

func (t *txn) Get(ctx context.Context, key []byte) ([]byte, error) {
	k := string(key)
	v, ok := t.effective(k)
	if !ok {
		t.pointReads[k] = true
		return nil, &kv.Error{Code: kv.NotFoundErr, Message: "memkv: key not found"}
	}
	t.pointReads[k] = true
	return append([]byte{}, v...), nil
}

func (t *txn) Put(ctx context.Context, key, value []byte) error {
	k := string(key)
	delete(t.deleted, k)
	t.writes[k] = append([]byte{}, value...)
	return nil
}

func (t *txn) Delete(ctx context.Context, key []byte) error {
	k := string(key)
	delete(t.writes, k)
	t.deleted[k] = true
	return nil
}

func (t *txn) DeleteRange(ctx context.Context, start, end []byte) error {
	for _, e := range t.scanEffective(nil, nil, nil) {
		if bytes.Compare(e.Key, start) >= 0 && bytes.Compare(e.Key, end) < 0 {
			delete(t.writes, string(e.Key))
			t.deleted[string(e.Key)] = true
		}
	}
	t.rangeReads = append(t.rangeReads, [2][]byte{
		append([]byte{}, start...), append([]byte{}, end...),
	})
	return nil
}

func (t *txn) ScanPrefix(ctx context.Context, prefix []byte) ([]kv.KeyValue, error) {
	t.prefixReads = append(t.prefixReads, append([]byte{}, prefix...))
	return t.scanEffective(prefix, nil, nil), nil
}

func (t *txn) Scan(ctx context.Context, start, end []byte) ([]kv.KeyValue, error) {
	t.rangeReads = append(t.rangeReads, [2][]byte{
		append([]byte{}, start...), append([]byte{}, end...),
	})
	return t.scanEffective(nil, start, end), nil
}

func (t *txn) scanEffective(prefix, start, end []byte) []kv.KeyValue {
	seen := map[string]bool{}
	var out []kv.KeyValue
	add := func(k string, v []byte) {
		if seen[k] {
			return
		}
		seen[k] = true
		if t.deleted[k] {
			return
		}
		kb := []byte(k)
		if prefix != nil && !bytes.HasPrefix(kb, prefix) {
			return
		}
		if start != nil && bytes.Compare(kb, start) < 0 {
			return
		}
		if end != nil && bytes.Compare(kb, end) >= 0 {
			return
		}
		out = append(out, kv.KeyValue{Key: kb, Value: append([]byte{}, v...)})
	}
	for k, v := range t.writes {
		add(k, v)
	}
	for k, v := range t.snapshot {
		add(k, v)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}
