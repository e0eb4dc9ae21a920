// Package errors provides custom error types for the clinmap pipelines.
// These errors enable programmatic error checking and carry enough context
// (stage, file, line, batch contents) for an operator to act on a failed run.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the clinmap system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrBatchFailed indicates that an annotation batch exhausted its retries
	ErrBatchFailed = errors.New("batch failed")

	// ErrInconsistent indicates a reconciliation defect such as a duplicate row after dedup
	ErrInconsistent = errors.New("inconsistent result")

	// ErrPersistence indicates that a baseline or output could not be replaced
	ErrPersistence = errors.New("persistence failed")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents a malformed record in a tab-separated input
type ParseError struct {
	Format  string // "variant", "vcf", "mapping", "consequence"
	File    string
	Line    int
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("parse error in %s at %s:%d: %s", e.Format, e.File, e.Line, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Format, e.Line, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewParseError creates a new ParseError
func NewParseError(format string, line int, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Line:    line,
		Message: message,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "rename", "sync", "open", "close"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// TimeoutError represents an operation timeout
type TimeoutError struct {
	Operation string
	Duration  string
	Message   string
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.Duration != "" {
		return fmt.Sprintf("operation %s timed out after %s: %s", e.Operation, e.Duration, e.Message)
	}
	return fmt.Sprintf("operation %s timed out: %s", e.Operation, e.Message)
}

// Is implements errors.Is support
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation, duration, message string) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
		Message:   message,
	}
}

// ProcessError represents an error from an external process or command
type ProcessError struct {
	Operation string // What operation was being performed
	Command   string // The command that was executed
	Output    string // Stderr output from the process
	ExitCode  int    // Exit code if available
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *ProcessError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("process error during %s (command: %s, exit %d): %v\nOutput: %s", e.Operation, e.Command, e.ExitCode, e.Err, e.Output)
	}
	return fmt.Sprintf("process error during %s (command: %s, exit %d): %v", e.Operation, e.Command, e.ExitCode, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// NewProcessError creates a new ProcessError
func NewProcessError(operation, command, output string, exitCode int, err error) *ProcessError {
	return &ProcessError{
		Operation: operation,
		Command:   command,
		Output:    output,
		ExitCode:  exitCode,
		Err:       err,
	}
}

// BatchError reports an annotation batch that failed every attempt.
// Keys holds the full batch so it can be re-dispatched as a unit.
type BatchError struct {
	Index    int
	Attempts int
	Keys     []string
	Err      error
}

// Error implements the error interface
func (e *BatchError) Error() string {
	preview := e.Keys
	suffix := ""
	if len(preview) > 3 {
		preview = preview[:3]
		suffix = fmt.Sprintf(", ... %d more", len(e.Keys)-3)
	}
	return fmt.Sprintf("batch %d failed after %d attempt(s) (%d keys: %s%s): %v",
		e.Index, e.Attempts, len(e.Keys), strings.Join(preview, ", "), suffix, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *BatchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *BatchError) Is(target error) bool {
	return target == ErrBatchFailed
}

// ConsistencyError reports a logic defect detected in a table, such as rows
// that still appear more than once after deduplication.
type ConsistencyError struct {
	Stage      string
	Message    string
	Duplicates []string
}

// Error implements the error interface
func (e *ConsistencyError) Error() string {
	if len(e.Duplicates) > 0 {
		return fmt.Sprintf("consistency check failed in %s: %s (%d duplicate group(s): %s)",
			e.Stage, e.Message, len(e.Duplicates), strings.Join(e.Duplicates, "; "))
	}
	return fmt.Sprintf("consistency check failed in %s: %s", e.Stage, e.Message)
}

// Is implements errors.Is support
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}

// PersistenceError reports a failed replace of a persisted artifact.
// The prior artifact is left intact when this error is returned.
type PersistenceError struct {
	Store    string // "fs", "s3", "memory"
	Location string
	Err      error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s via %s store: %v", e.Location, e.Store, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// StageError attributes a failure to a named pipeline stage and artifact.
type StageError struct {
	Stage    string
	Artifact string
	Err      error
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.Artifact != "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Artifact, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StageError) Unwrap() error {
	return e.Err
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation or parse error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsBatchFailure checks if an error contains an exhausted annotation batch
func IsBatchFailure(err error) bool {
	return errors.Is(err, ErrBatchFailed)
}

// IsInconsistent checks if an error reports a reconciliation defect
func IsInconsistent(err error) bool {
	return errors.Is(err, ErrInconsistent)
}

// IsPersistence checks if an error reports a failed replace
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapStage wraps an error with the stage and artifact it occurred in
func WrapStage(stage, artifact string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Artifact: artifact, Err: err}
}

// WrapPersistence wraps an error as a PersistenceError
func WrapPersistence(store, location string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Store: store, Location: location, Err: err}
}

// WithFile attaches a file name to a ParseError found anywhere in err's chain.
func WithFile(err error, file string) error {
	var pe *ParseError
	if errors.As(err, &pe) && pe.File == "" {
		pe.File = file
	}
	return err
}
