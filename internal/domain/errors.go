package domain

import "fmt"

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrFormInvalid carries every field error of a rejected deal form.
type ErrFormInvalid struct {
	Fields map[string]string
}

func (e *ErrFormInvalid) Error() string {
	return fmt.Sprintf("invalid deal form: %d field error(s)", len(e.Fields))
}

// ErrConflict indicates a resource already exists.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrTransitionNotAllowed indicates the stage policy refused a move.
type ErrTransitionNotAllowed struct {
	From Stage
	To   Stage
}

func (e *ErrTransitionNotAllowed) Error() string {
	return fmt.Sprintf("stage transition not allowed: %s -> %s", e.From, e.To)
}

// ErrMutationFailed indicates a backend confirmation failed and the optimistic change was rolled back.
type ErrMutationFailed struct {
	Op     string
	DealID string
	Err    error
}

func (e *ErrMutationFailed) Error() string {
	return fmt.Sprintf("%s deal %s failed: %v", e.Op, e.DealID, e.Err)
}

func (e *ErrMutationFailed) Unwrap() error {
	return e.Err
}

// ErrFetchFailed indicates a store could not load its collection.
type ErrFetchFailed struct {
	Resource string
	Err      error
}

func (e *ErrFetchFailed) Error() string {
	return fmt.Sprintf("fetch %s failed: %v", e.Resource, e.Err)
}

func (e *ErrFetchFailed) Unwrap() error {
	return e.Err
}

// ErrUnauthorized indicates an invalid viewer token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
