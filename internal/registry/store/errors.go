package store

import "fmt"

// NotFoundError indicates the referenced entity does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a concurrent mutation was detected. Callers may retry.
type ConflictError struct {
	Message string
	Code    string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// AuthorizationError indicates the caller lacks the capability for an action.
type AuthorizationError struct {
	Action   string
	Resource string
	ID       string
}

func (e *AuthorizationError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("not authorized to %s", e.Action)
	}
	return fmt.Sprintf("not authorized to %s %s %s", e.Action, e.Resource, e.ID)
}

// StorageError wraps a failure of the underlying transactional store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
