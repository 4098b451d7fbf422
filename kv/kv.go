// Package kv defines the generic ordered key-value interface the rest of
// the core is layered over (spec.md §4.6, component C9): a byte-ordered
// store supporting point get/put/delete, a half-open delete_range, a
// prefix scan and a ranged scan, transactionally, with optimistic-conflict
// detection on commit, split into a Store/Transaction pair over an opaque
// byte-keyed space.
package kv

import "context"

// ErrCode enumerates the kinds of error a Store/Transaction may return.
type ErrCode int

const (
	// InternalErr indicates an unexpected backend failure.
	InternalErr ErrCode = iota
	// ConflictErr indicates a transaction could not be committed because
	// another transaction modified a key it read or wrote (spec.md §4.5's
	// "optimistic concurrency, retried up to 10 times").
	ConflictErr
	// NotFoundErr indicates a Get found no value at the given key.
	NotFoundErr
)

// Error is the error type every kv operation returns.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string { return e.Message }

// IsConflict reports whether err is a ConflictErr.
func IsConflict(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == ConflictErr
}

// IsNotFound reports whether err is a NotFoundErr.
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == NotFoundErr
}

func conflictError(msg string) error  { return &Error{Code: ConflictErr, Message: msg} }
func notFoundError(msg string) error  { return &Error{Code: NotFoundErr, Message: msg} }
func internalError(msg string) error  { return &Error{Code: InternalErr, Message: msg} }

// KeyValue is one key/value pair returned by a ScanPrefix.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Transaction is a single atomic unit of work against a Store. All
// methods take a context so a long-running scan can be cancelled; none
// of them take effect durably until the Store commits the transaction
// (Store.Commit), at which point every read this transaction performed
// is checked against concurrent writers (spec.md §4.5).
type Transaction interface {
	// Get fetches the value at key, or a NotFoundErr.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put writes value at key, creating or overwriting it.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes the value at key, a no-op if absent.
	Delete(ctx context.Context, key []byte) error

	// DeleteRange removes every key in [start, end) — end is exclusive,
	// constructed by the caller via pathwalker.EndKeyExclusive so a set's
	// data subspace can be cleared without touching its siblings
	// (spec.md §4.2, §4.5).
	DeleteRange(ctx context.Context, start, end []byte) error

	// ScanPrefix returns every key/value pair whose key has the given
	// prefix, in ascending key order.
	ScanPrefix(ctx context.Context, prefix []byte) ([]KeyValue, error)

	// Scan returns every key/value pair in [start, end), in ascending key
	// order — the general ranged counterpart to ScanPrefix, used when the
	// caller wants a sub-range of a subspace rather than the whole thing
	// (spec.md §4.5's Reduce over a primary-key-bounded slice of a set).
	Scan(ctx context.Context, start, end []byte) ([]KeyValue, error)
}

// Store begins transactions and commits them with conflict detection.
type Store interface {
	// Begin starts a new transaction.
	Begin(ctx context.Context) (Transaction, error)

	// Commit attempts to durably apply txn's writes. Returns a
	// ConflictErr if a concurrent transaction invalidated one of txn's
	// reads; the caller is expected to retry from scratch
	// (spec.md §4.5's up-to-10-attempt retry loop).
	Commit(ctx context.Context, txn Transaction) error

	// Discard abandons txn without committing, releasing any resources
	// it held. Safe to call after a successful Commit (a no-op then).
	Discard(ctx context.Context, txn Transaction)

	// Close releases the store's resources.
	Close(ctx context.Context) error
}
