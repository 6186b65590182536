package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Callers classify failures with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrStorage         = errors.New("storage failure")
	ErrPartialCascade  = errors.New("partial cascade failure")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("version conflict")

	// ErrDuplicateRoom is returned by ConversationStore.CreateConversation when
	// another writer created the room first.
	ErrDuplicateRoom = errors.New("room already exists")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound is shorthand for &NotFoundError{Resource: resource, ID: id}.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// StorageError wraps a backing-store I/O failure. It is retryable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it is nil or already classified.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// PartialFailure reports a pair of document updates where one succeeded and
// the other did not. Completed and Pending hold user ids. Retrying the repair
// is idempotent.
type PartialFailure struct {
	Op             string
	ConversationID string
	Completed      []string
	Pending        []string
	Err            error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: conversation %s: back-references pending for [%s]: %v",
		e.Op, e.ConversationID, strings.Join(e.Pending, ", "), e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

func (e *PartialFailure) Is(target error) bool { return target == ErrPartialCascade }

// Retryable reports whether err is transient: storage failures and partial
// cascades may be retried, everything else is terminal.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrPartialCascade)
}
