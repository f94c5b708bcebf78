// Package errors provides structured error handling for the Sigil bridge.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess     = 0 // Successful execution
	ExitGeneral     = 1 // General/unknown error
	ExitInput       = 2 // Invalid input
	ExitUnavailable = 3 // Broker, relay or wallet unreachable
	ExitNotFound    = 4 // Resource not found
	ExitPermission  = 5 // Permission denied or request declined
	ExitTimeout     = 6 // Operation timed out
)

// BridgeError is the structured error type for the bridge.
type BridgeError struct {
	Code       string            // Machine-readable error code
	Class      string            // Broader error kind this code belongs to (e.g. TIMEOUT)
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *BridgeError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for BridgeError. An error matches a target with the
// same code, or a target whose code is this error's class.
func (e *BridgeError) Is(target error) bool {
	var t *BridgeError
	if errors.As(target, &t) {
		return e.Code == t.Code || (e.Class != "" && e.Class == t.Code)
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &BridgeError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &BridgeError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &BridgeError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Timeout errors. Every operation-specific timeout has class TIMEOUT.
	ErrTimeout = &BridgeError{
		Code:     "TIMEOUT",
		Message:  "no reply within the operation deadline",
		ExitCode: ExitTimeout,
	}

	ErrConnectionTimeout = &BridgeError{
		Code:     "CONNECTION_TIMEOUT",
		Class:    "TIMEOUT",
		Message:  "wallet connection timed out",
		ExitCode: ExitTimeout,
	}

	ErrAddressTimeout = &BridgeError{
		Code:     "ADDRESS_TIMEOUT",
		Class:    "TIMEOUT",
		Message:  "address request timed out",
		ExitCode: ExitTimeout,
	}

	ErrSignTimeout = &BridgeError{
		Code:     "SIGN_TIMEOUT",
		Class:    "TIMEOUT",
		Message:  "transaction signing timed out",
		ExitCode: ExitTimeout,
	}

	// Bridge errors visible to page code.
	ErrUserRejected = &BridgeError{
		Code:     "USER_REJECTED",
		Message:  "user rejected the request",
		ExitCode: ExitPermission,
	}

	ErrRelayUnavailable = &BridgeError{
		Code:     "RELAY_UNAVAILABLE",
		Message:  "relay could not reach the broker",
		ExitCode: ExitUnavailable,
	}

	ErrOriginNotAllowed = &BridgeError{
		Code:     "ORIGIN_NOT_ALLOWED",
		Message:  "origin is not allowed to use the wallet",
		ExitCode: ExitPermission,
	}

	ErrWalletUnavailable = &BridgeError{
		Code:     "WALLET_UNAVAILABLE",
		Message:  "wallet surface is not attached",
		ExitCode: ExitUnavailable,
	}

	ErrRequestFailed = &BridgeError{
		Code:     "REQUEST_FAILED",
		Message:  "wallet request failed",
		ExitCode: ExitGeneral,
	}

	// Errors that never reach page code.
	ErrUnauthorizedSource = &BridgeError{
		Code:     "UNAUTHORIZED_SOURCE",
		Message:  "message provenance check failed",
		ExitCode: ExitPermission,
	}

	ErrUnknownOperation = &BridgeError{
		Code:     "UNKNOWN_OPERATION",
		Message:  "no handler for operation",
		ExitCode: ExitInput,
	}

	ErrHandlerFailed = &BridgeError{
		Code:     "HANDLER_FAILED",
		Message:  "broker handler failed",
		ExitCode: ExitGeneral,
	}

	// Config-specific errors.
	ErrConfigNotFound = &BridgeError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &BridgeError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &BridgeError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}

	ErrInvalidFormat = &BridgeError{
		Code:     "INVALID_FORMAT",
		Message:  "invalid value format",
		ExitCode: ExitInput,
	}

	// URI errors.
	ErrInvalidURI = &BridgeError{
		Code:     "INVALID_URI",
		Message:  "invalid payment URI",
		ExitCode: ExitInput,
	}

	ErrUnsupportedScheme = &BridgeError{
		Code:     "UNSUPPORTED_SCHEME",
		Message:  "URI scheme is not a recognized cryptocurrency scheme",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &BridgeError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidChecksum = &BridgeError{
		Code:     "INVALID_CHECKSUM",
		Message:  "invalid address checksum",
		ExitCode: ExitInput,
	}

	ErrUnsupportedVersion = &BridgeError{
		Code:     "UNSUPPORTED_VERSION",
		Message:  "unsupported address version",
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &BridgeError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount",
		ExitCode: ExitInput,
	}
)

// byCode indexes the sentinels that may travel across the bridge as error
// reply codes.
//
//nolint:gochecknoglobals // Lookup table for wire error codes
var byCode = map[string]*BridgeError{
	ErrUserRejected.Code:       ErrUserRejected,
	ErrRelayUnavailable.Code:   ErrRelayUnavailable,
	ErrOriginNotAllowed.Code:   ErrOriginNotAllowed,
	ErrWalletUnavailable.Code:  ErrWalletUnavailable,
	ErrUnknownOperation.Code:   ErrUnknownOperation,
	ErrHandlerFailed.Code:      ErrHandlerFailed,
	ErrConnectionTimeout.Code:  ErrConnectionTimeout,
	ErrAddressTimeout.Code:     ErrAddressTimeout,
	ErrSignTimeout.Code:        ErrSignTimeout,
	ErrTimeout.Code:            ErrTimeout,
	ErrInvalidURI.Code:         ErrInvalidURI,
	ErrUnsupportedScheme.Code:  ErrUnsupportedScheme,
	ErrRequestFailed.Code:      ErrRequestFailed,
	ErrUnauthorizedSource.Code: ErrUnauthorizedSource,
}

// Lookup returns the sentinel registered for a wire error code.
func Lookup(code string) (*BridgeError, bool) {
	se, ok := byCode[code]
	return se, ok
}

// New creates a new BridgeError with the given code and message.
func New(code, message string) *BridgeError {
	return &BridgeError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *BridgeError
	if errors.As(err, &se) {
		return &BridgeError{
			Code:       se.Code,
			Class:      se.Class,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      err,
			ExitCode:   se.ExitCode,
		}
	}

	return &BridgeError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *BridgeError
	if errors.As(err, &se) {
		return &BridgeError{
			Code:       se.Code,
			Class:      se.Class,
			Message:    se.Message,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &BridgeError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *BridgeError
	if errors.As(err, &se) {
		return &BridgeError{
			Code:       se.Code,
			Class:      se.Class,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &BridgeError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *BridgeError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *BridgeError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
