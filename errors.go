package pagedb

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupted means the file is not a valid pagedb database, or an
	// internal consistency check failed. There is no automatic repair.
	ErrCorrupted = errors.New("database corrupted")

	// ErrOutOfSpace means the fixed-size mapped region has no free pages
	// left. The write transaction that hit it is rolled back; all previously
	// committed data remains intact and readable.
	ErrOutOfSpace = errors.New("out of space")

	// ErrWriteConflict is returned by TryBeginWrite when another write
	// transaction is in progress.
	ErrWriteConflict = errors.New("write transaction already in progress")

	// ErrInvalidArgument covers caller mistakes: empty table names,
	// non-power-of-two page sizes, oversized keys, table type mismatches.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is the normal outcome of a point lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrTxDone means the transaction has already been committed or aborted.
	ErrTxDone = errors.New("transaction already finished")

	// ErrDatabaseClosed means the DB handle has been closed.
	ErrDatabaseClosed = errors.New("database closed")
)

// CorruptError carries the location of a failed consistency check.
// It unwraps to ErrCorrupted.
type CorruptError struct {
	Page pgno
	Msg  string
}

func corruptf(page pgno, format string, args ...any) error {
	return &CorruptError{page, fmt.Sprintf(format, args...)}
}

func (e *CorruptError) Unwrap() error {
	return ErrCorrupted
}

func (e *CorruptError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("database corrupted: %s", e.Msg)
	}
	return fmt.Sprintf("database corrupted: page %d: %s", e.Page, e.Msg)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
