package common

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	// InvalidConfigurationError indicates a structurally invalid plan
	// configuration (mismatched parallel arrays, disallowed operator
	// combinations). Detected at plan-build or prepare time, never retried.
	InvalidConfigurationError ErrorCode = iota
	// DuplicateFieldError indicates the same field name appearing twice in a
	// stage's field list. Detected at prepare time.
	DuplicateFieldError
	// CorruptDocumentError indicates a malformed raw document encountered
	// while streaming its fields.
	CorruptDocumentError
	// EvalError is a data-dependent failure raised while evaluating an
	// expression for one row.
	EvalError
	// PositionalNoMatchError is returned when the positional operator could
	// not find a matching array element.
	PositionalNoMatchError
	// PositionalMismatchError is returned when the recorded match index does
	// not land on an element of the traversed array.
	PositionalMismatchError
	// StorageConflictError is surfaced by RestoreState when the underlying
	// collection changed shape while the plan was suspended. Retryable by
	// reopening the tree against a fresh snapshot.
	StorageConflictError
	// InterruptedError indicates the operation was cancelled at an interrupt
	// checkpoint.
	InterruptedError
	// SlotNotFoundError indicates a slot id that no descendant stage and no
	// external binding exposes. Detected at prepare time.
	SlotNotFoundError
)

func (ec ErrorCode) String() string {
	switch ec {
	case InvalidConfigurationError:
		return "InvalidConfigurationError"
	case DuplicateFieldError:
		return "DuplicateFieldError"
	case CorruptDocumentError:
		return "CorruptDocumentError"
	case EvalError:
		return "EvalError"
	case PositionalNoMatchError:
		return "PositionalNoMatchError"
	case PositionalMismatchError:
		return "PositionalMismatchError"
	case StorageConflictError:
		return "StorageConflictError"
	case InterruptedError:
		return "InterruptedError"
	case SlotNotFoundError:
		return "SlotNotFoundError"
	}
	return "unknown"
}

// EngineError is the error type used throughout the execution engine. It
// carries a code so callers can distinguish retryable storage conflicts from
// fatal structural errors without string matching.
type EngineError struct {
	Code      ErrorCode
	ErrString string
}

func (e EngineError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// Errorf builds an EngineError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) error {
	return EngineError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err, if it is (or wraps) an EngineError.
func CodeOf(err error) (ErrorCode, bool) {
	var ee EngineError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return 0, false
}

// IsRetryable reports whether err is a storage conflict the caller may retry
// by reopening the plan tree against a fresh snapshot.
func IsRetryable(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == StorageConflictError
}
