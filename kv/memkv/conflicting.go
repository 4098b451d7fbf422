package memkv

import (
	"context"
	"sync"

	"github.com/muskanmahajan37/RefineDB/kv"
)

// ConflictingStore wraps a Store and forces its first FailuresBeforeSuccess
// commits to fail with a ConflictErr regardless of whether they actually
// conflict, so the executor's up-to-10-attempt retry loop (spec.md §4.5,
// §8 scenario 5) can be exercised deterministically without racing real
// goroutines against each other. This has no teacher counterpart — the
// original only exposes a generic mock store — and exists purely to make
// the retry path testable (documented as a supplemented test tool, not a
// production component).
type ConflictingStore struct {
	*Store

	mu                    sync.Mutex
	FailuresBeforeSuccess int
	Attempts              int
}

// NewConflictingStore returns a store whose first n Commit calls fail.
func NewConflictingStore(failuresBeforeSuccess int) *ConflictingStore {
	return &ConflictingStore{Store: NewStore(), FailuresBeforeSuccess: failuresBeforeSuccess}
}

func (c *ConflictingStore) Commit(ctx context.Context, txn kv.Transaction) error {
	c.mu.Lock()
	c.Attempts++
	fail := c.Attempts <= c.FailuresBeforeSuccess
	c.mu.Unlock()
	if fail {
		return &kv.Error{Code: kv.ConflictErr, Message: "memkv: injected conflict"}
	}
	return c.Store.Commit(ctx, txn)
}
