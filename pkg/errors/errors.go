// Package errors provides structured error handling for Subpass.
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

// Exit codes.
const (
	ExitSuccess     = 0   // Successful execution
	ExitGeneral     = 1   // General/unknown error
	ExitInput       = 2   // Invalid input
	ExitAuth        = 3   // Authentication failed
	ExitNotFound    = 4   // Resource not found
	ExitPermission  = 5   // Permission denied or insufficient funds
	ExitRejected    = 6   // User declined to sign
	ExitInterrupted = 130 // Interrupted before completion (128 + SIGINT)
)

// SubpassError is the structured error type for Subpass.
type SubpassError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *SubpassError) Error() string {
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

func (e *SubpassError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for SubpassError.
func (e *SubpassError) Is(target error) bool {
	var t *SubpassError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Subscription flow taxonomy. Every kind maps to a distinct message in UserMessage.
var (
	// ErrConfiguration indicates a malformed contract endpoint. Fatal for the controller.
	ErrConfiguration = &SubpassError{
		Code:     "CONFIGURATION_ERROR",
		Message:  "contract endpoint configuration is invalid",
		ExitCode: ExitInput,
	}

	// ErrConnection indicates there is no usable wallet session.
	ErrConnection = &SubpassError{
		Code:     "CONNECTION_ERROR",
		Message:  "no wallet session is connected",
		ExitCode: ExitAuth,
	}

	// ErrRead indicates a ledger query failed or returned a malformed response.
	ErrRead = &SubpassError{
		Code:     "READ_ERROR",
		Message:  "ledger query failed",
		ExitCode: ExitGeneral,
	}

	// ErrSignatureRejected indicates the user declined to sign a write.
	ErrSignatureRejected = &SubpassError{
		Code:     "SIGNATURE_REJECTED",
		Message:  "signature request was declined",
		ExitCode: ExitRejected,
	}

	// ErrBroadcast indicates a signed write could not be submitted.
	ErrBroadcast = &SubpassError{
		Code:     "BROADCAST_ERROR",
		Message:  "transaction could not be broadcast",
		ExitCode: ExitGeneral,
	}

	// ErrTransactionReverted indicates the ledger rejected an included write.
	ErrTransactionReverted = &SubpassError{
		Code:     "TRANSACTION_REVERTED",
		Message:  "transaction reverted on chain",
		ExitCode: ExitGeneral,
	}

	// ErrConfirmationTimeout indicates no inclusion was observed in time.
	ErrConfirmationTimeout = &SubpassError{
		Code:     "CONFIRMATION_TIMEOUT",
		Message:  "transaction confirmation timed out",
		ExitCode: ExitGeneral,
	}

	// ErrActionUnavailable indicates a write initiation was refused with no state change.
	ErrActionUnavailable = &SubpassError{
		Code:     "ACTION_UNAVAILABLE",
		Message:  "action is not available in the current state",
		ExitCode: ExitInput,
	}

	// ErrInvalidTransition indicates a write tracker was driven out of order.
	ErrInvalidTransition = &SubpassError{
		Code:     "INVALID_TRANSITION",
		Message:  "invalid write state transition",
		ExitCode: ExitGeneral,
	}

	// ErrInterrupted indicates the user stopped a write before it was seen confirmed.
	ErrInterrupted = &SubpassError{
		Code:       "INTERRUPTED",
		Message:    "interrupted before the transaction was confirmed",
		Suggestion: "run 'subpass status' to see whether the transaction landed before retrying",
		ExitCode:   ExitInterrupted,
	}

	// ErrInsufficientBalance is a warning: the token balance does not cover the fee.
	ErrInsufficientBalance = &SubpassError{
		Code:     "INSUFFICIENT_BALANCE",
		Message:  "token balance is below the subscription fee",
		ExitCode: ExitPermission,
	}
)

// General sentinel errors.
var (
	ErrGeneral = &SubpassError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &SubpassError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrAuthentication = &SubpassError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	ErrNotFound = &SubpassError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrDecryptionFailed = &SubpassError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong password or corrupted file",
		ExitCode: ExitAuth,
	}

	ErrKeyNotFound = &SubpassError{
		Code:     "KEY_NOT_FOUND",
		Message:  "signing key file not found",
		ExitCode: ExitNotFound,
	}

	ErrKeyExists = &SubpassError{
		Code:     "KEY_EXISTS",
		Message:  "signing key file already exists",
		ExitCode: ExitInput,
	}

	ErrInvalidMnemonic = &SubpassError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &SubpassError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidChecksum = &SubpassError{
		Code:     "INVALID_CHECKSUM",
		Message:  "invalid address checksum",
		ExitCode: ExitInput,
	}

	ErrNetworkError = &SubpassError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	ErrConfigNotFound = &SubpassError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &SubpassError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrInvalidGasSpeed = &SubpassError{
		Code:     "INVALID_GAS_SPEED",
		Message:  "invalid gas speed",
		ExitCode: ExitInput,
	}

	ErrInvalidGasPrice = &SubpassError{
		Code:     "INVALID_GAS_PRICE",
		Message:  "gas price cannot be nil",
		ExitCode: ExitInput,
	}

	ErrInvalidChainID = &SubpassError{
		Code:     "INVALID_CHAIN_ID",
		Message:  "chain ID cannot be nil",
		ExitCode: ExitInput,
	}

	ErrInvalidGasLimit = &SubpassError{
		Code:     "INVALID_GAS_LIMIT",
		Message:  "gas limit cannot be zero",
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &SubpassError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount format",
		ExitCode: ExitInput,
	}
)

// New creates a new SubpassError with the given code and message.
func New(code, message string) *SubpassError {
	return &SubpassError{
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

	var se *SubpassError
	if errors.As(err, &se) {
		return &SubpassError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      err,
			ExitCode:   se.ExitCode,
		}
	}

	return &SubpassError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel that carries cause as its underlying error.
// The result still matches the sentinel with errors.Is.
func WithCause(sentinel *SubpassError, cause error) error {
	return &SubpassError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *SubpassError
	if errors.As(err, &se) {
		return &SubpassError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SubpassError{
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

	var se *SubpassError
	if errors.As(err, &se) {
		return &SubpassError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SubpassError{
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

	var se *SubpassError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *SubpassError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// userMessages holds the notification text for each taxonomy kind.
//
//nolint:gochecknoglobals // Static lookup table
var userMessages = map[string]string{
	ErrConfiguration.Code:       "The contract addresses in your configuration are not valid. Fix them and restart.",
	ErrConnection.Code:          "Connect a wallet to view and manage your subscription.",
	ErrRead.Code:                "Could not read subscription data from the network. Check the RPC endpoint and network.",
	ErrSignatureRejected.Code:   "You declined the signature request. Nothing was sent; you can try again.",
	ErrBroadcast.Code:           "The signed transaction could not be sent to the network. Try again.",
	ErrTransactionReverted.Code: "The network rejected the transaction. Check your allowance and balance, then retry.",
	ErrConfirmationTimeout.Code: "The transaction was not confirmed in time. It was treated as failed; check an explorer before retrying.",
	ErrActionUnavailable.Code:   "That action is not available right now.",
	ErrInsufficientBalance.Code: "Your token balance is lower than the subscription fee.",
}

// UserMessage returns the user-facing message for an error.
// Taxonomy kinds get a fixed distinct message; anything else falls back to Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[Code(err)]; ok {
		return msg
	}
	return err.Error()
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
