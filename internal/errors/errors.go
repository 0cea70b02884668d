package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Rooms
	ErrCodeRoomNotFound  ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeRoomFull      ErrorCode = "ROOM_FULL"
	ErrCodeCodeExhausted ErrorCode = "CODE_EXHAUSTED"
	ErrCodeNotInRoom     ErrorCode = "NOT_IN_ROOM"

	// Connection requests
	ErrCodeRequestNotFound         ErrorCode = "REQUEST_NOT_FOUND"
	ErrCodeNotAuthorizedForRequest ErrorCode = "NOT_AUTHORIZED_FOR_REQUEST"
	ErrCodeTargetNotOnline         ErrorCode = "TARGET_NOT_ONLINE"

	// Peer channel
	ErrCodeNegotiationFailed ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeTransferFailed    ErrorCode = "TRANSFER_FAILED"
	ErrCodeTransferCancelled ErrorCode = "TRANSFER_CANCELLED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeStore    ErrorCode = "STORE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func RoomNotFound(code string) *AppError {
	return New(ErrCodeRoomNotFound, fmt.Sprintf("Room %s not found", code))
}

func RoomFull(code string) *AppError {
	return New(ErrCodeRoomFull, fmt.Sprintf("Room %s is full", code))
}

func CodeExhausted() *AppError {
	return New(ErrCodeCodeExhausted, "Could not allocate an unused room code")
}

func NotInRoom() *AppError {
	return New(ErrCodeNotInRoom, "Sender is not a participant of this room")
}

func RequestNotFound() *AppError {
	return New(ErrCodeRequestNotFound, "Connection request not found or already terminated")
}

func NotAuthorizedForRequest() *AppError {
	return New(ErrCodeNotAuthorizedForRequest, "Connection not authorized to act on this request")
}

func TargetNotOnline(memberID string) *AppError {
	return New(ErrCodeTargetNotOnline, fmt.Sprintf("Member %s is not online", memberID))
}

func NegotiationFailed(reason string) *AppError {
	return New(ErrCodeNegotiationFailed, fmt.Sprintf("Peer negotiation failed: %s", reason))
}

func TransferFailed(reason string) *AppError {
	return New(ErrCodeTransferFailed, fmt.Sprintf("Transfer failed: %s", reason))
}

func TransferCancelled() *AppError {
	return New(ErrCodeTransferCancelled, "Transfer cancelled")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Store(cause error) *AppError {
	return Wrap(ErrCodeStore, "Session store error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}
