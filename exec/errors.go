package exec

// ErrCode enumerates the executor's closed error taxonomy (spec.md §6).
type ErrCode int

const (
	MissingType ErrCode = iota
	MissingField
	MissingPrimaryKey
	TypeNotFound
	IncompatibleFieldAndValueType
	NotImplemented
	NullUnwrapped
	FreshTableOrSetNotSupported
	ExportTypeNotSupported
	MaxRecursionDepthExceeded
	BothSelectCandidatesFired
	PathIntegrityFailure
	ConflictAfterRetries
	ScriptThrownError
	ScriptThrownNull
)

func (c ErrCode) String() string {
	switch c {
	case MissingType:
		return "MissingType"
	case MissingField:
		return "MissingField"
	case MissingPrimaryKey:
		return "MissingPrimaryKey"
	case TypeNotFound:
		return "TypeNotFound"
	case IncompatibleFieldAndValueType:
		return "IncompatibleFieldAndValueType"
	case NotImplemented:
		return "NotImplemented"
	case NullUnwrapped:
		return "NullUnwrapped"
	case FreshTableOrSetNotSupported:
		return "FreshTableOrSetNotSupported"
	case ExportTypeNotSupported:
		return "ExportTypeNotSupported"
	case MaxRecursionDepthExceeded:
		return "MaxRecursionDepthExceeded"
	case BothSelectCandidatesFired:
		return "BothSelectCandidatesFired"
	case PathIntegrityFailure:
		return "PathIntegrityFailure"
	case ConflictAfterRetries:
		return "ConflictAfterRetries"
	case ScriptThrownError:
		return "ScriptThrownError"
	case ScriptThrownNull:
		return "ScriptThrownNull"
	default:
		return "Unknown"
	}
}

// Error is the error type every exec operation returns.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string { return e.Code.String() + ": " + e.Message }

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrCode) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// mapTxnErr wraps an unexpected kv-layer failure (anything the
// executor's own conflict-retry loop didn't already handle) as a
// PathIntegrityFailure: from the script's point of view, the backend
// failing to serve a read or apply a write it expected to succeed is
// itself a storage-layer inconsistency.
func mapTxnErr(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: PathIntegrityFailure, Message: err.Error()}
}
