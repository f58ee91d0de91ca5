package errors

import (
	"errors"
	"fmt"
	"sort"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown       ErrorCode = "UNKNOWN"
	ErrInternal      ErrorCode = "INTERNAL"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Package errors
	ErrPackageInvalid ErrorCode = "PACKAGE_INVALID"

	// Resolver and deployment errors
	ErrCycleDetected     ErrorCode = "CYCLE_DETECTED"
	ErrMissingDependency ErrorCode = "MISSING_DEPENDENCY"
	ErrFileSystem        ErrorCode = "FILESYSTEM"

	// Extraction errors
	ErrExternalProcess     ErrorCode = "EXTERNAL_PROCESS"
	ErrExtractionTimeout   ErrorCode = "EXTRACTION_TIMEOUT"
	ErrConcurrentOperation ErrorCode = "CONCURRENT_OPERATION"
	ErrInvalidState        ErrorCode = "INVALID_STATE"
)

// Detail keys used by the resolver and the deployment engine.
const (
	DetailPackage    = "package"
	DetailPackages   = "packages"
	DetailDependency = "dependency"
	DetailPath       = "path"
)

// ModkeeperError represents a structured error with code and details
type ModkeeperError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *ModkeeperError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ModkeeperError) Unwrap() error {
	return e.Wrapped
}

// Is matches any ModkeeperError with the same code, so
// errors.Is(err, errors.New(ErrNotFound, "")) tests the kind.
func (e *ModkeeperError) Is(target error) bool {
	var targetErr *ModkeeperError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

func newError(code ErrorCode, message string, wrapped error) *ModkeeperError {
	return &ModkeeperError{
		Code:    code,
		Message: message,
		Details: map[string]interface{}{},
		Wrapped: wrapped,
	}
}

// New creates an error of the given kind
func New(code ErrorCode, message string) *ModkeeperError {
	return newError(code, message, nil)
}

// Newf is New with a format string
func Newf(code ErrorCode, format string, args ...interface{}) *ModkeeperError {
	return newError(code, fmt.Sprintf(format, args...), nil)
}

// Wrap classifies err under code. The raw message of err stays part of
// Error(). A nil err gives nil.
func Wrap(err error, code ErrorCode, message string) *ModkeeperError {
	if err == nil {
		return nil
	}
	return newError(code, message, err)
}

// Wrapf is Wrap with a format string
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ModkeeperError {
	if err == nil {
		return nil
	}
	return newError(code, fmt.Sprintf(format, args...), err)
}

// WithDetail adds a detail to the error
func (e *ModkeeperError) WithDetail(key string, value interface{}) *ModkeeperError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var mkErr *ModkeeperError
	if errors.As(err, &mkErr) {
		return mkErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a ModkeeperError
func GetErrorCode(err error) ErrorCode {
	var mkErr *ModkeeperError
	if errors.As(err, &mkErr) {
		return mkErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a ModkeeperError
func GetErrorDetails(err error) map[string]interface{} {
	var mkErr *ModkeeperError
	if errors.As(err, &mkErr) {
		return mkErr.Details
	}
	return nil
}

// NewCycleError reports the packages that sit on a dependency cycle.
func NewCycleError(packages []string) *ModkeeperError {
	ids := append([]string(nil), packages...)
	sort.Strings(ids)
	return Newf(ErrCycleDetected, "dependency cycle detected between packages %v", ids).
		WithDetail(DetailPackages, ids)
}

// CyclePackages returns the package ids carried by a CYCLE_DETECTED error.
func CyclePackages(err error) []string {
	if !IsErrorCode(err, ErrCycleDetected) {
		return nil
	}
	ids, _ := GetErrorDetails(err)[DetailPackages].([]string)
	return ids
}

// NewMissingDependency reports the first unmet dependency of a package.
func NewMissingDependency(pkg, dependency string) *ModkeeperError {
	return Newf(ErrMissingDependency, "package %s requires %s to be deployed first", pkg, dependency).
		WithDetail(DetailPackage, pkg).
		WithDetail(DetailDependency, dependency)
}

// Exit codes returned by the command line tool.
const (
	ExitOK                     = 0
	ExitGeneric                = 1
	ExitUsage                  = 2
	ExitCycleDetected          = 3
	ExitMissingDependency      = 4
	ExitFileSystem             = 5
	ExitExternalProcessFailure = 6
	ExitExtractionTimeout      = 7
	ExitConcurrentOperation    = 8
)

// ExitCode maps an error to the process exit code for its kind.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetErrorCode(err) {
	case ErrCycleDetected:
		return ExitCycleDetected
	case ErrMissingDependency:
		return ExitMissingDependency
	case ErrFileSystem:
		return ExitFileSystem
	case ErrExternalProcess:
		return ExitExternalProcessFailure
	case ErrExtractionTimeout:
		return ExitExtractionTimeout
	case ErrConcurrentOperation:
		return ExitConcurrentOperation
	case ErrInvalidInput:
		return ExitUsage
	default:
		return ExitGeneric
	}
}
