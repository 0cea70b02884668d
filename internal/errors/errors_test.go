package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeRoomNotFound, "Room AB3X7Q not found")
		assert.Equal(t, "ROOM_NOT_FOUND: Room AB3X7Q not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("redis connection refused")
		err := Wrap(ErrCodeStore, "Session store error", cause)
		assert.Contains(t, err.Error(), "STORE_ERROR")
		assert.Contains(t, err.Error(), "Session store error")
		assert.Contains(t, err.Error(), "redis connection refused")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"roomCode": "AB3X7Q"}
		err := New(ErrCodeRoomFull, "Room is full").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"RoomNotFound", func() *AppError { return RoomNotFound("AB3X7Q") }, ErrCodeRoomNotFound},
		{"RoomFull", func() *AppError { return RoomFull("AB3X7Q") }, ErrCodeRoomFull},
		{"CodeExhausted", func() *AppError { return CodeExhausted() }, ErrCodeCodeExhausted},
		{"NotInRoom", func() *AppError { return NotInRoom() }, ErrCodeNotInRoom},
		{"RequestNotFound", func() *AppError { return RequestNotFound() }, ErrCodeRequestNotFound},
		{"NotAuthorizedForRequest", func() *AppError { return NotAuthorizedForRequest() }, ErrCodeNotAuthorizedForRequest},
		{"TargetNotOnline", func() *AppError { return TargetNotOnline("member-1") }, ErrCodeTargetNotOnline},
		{"NegotiationFailed", func() *AppError { return NegotiationFailed("ice failed") }, ErrCodeNegotiationFailed},
		{"TransferFailed", func() *AppError { return TransferFailed("channel closed") }, ErrCodeTransferFailed},
		{"TransferCancelled", func() *AppError { return TransferCancelled() }, ErrCodeTransferCancelled},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("code", "too short") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("groupId") }, ErrCodeMissingRequired},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestStore(t *testing.T) {
	t.Run("wraps store error", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Store(cause)
		assert.Equal(t, ErrCodeStore, err.Code)
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeRoomFull, GetCode(RoomFull("AB3X7Q")))
	})

	t.Run("returns code for wrapped AppError", func(t *testing.T) {
		err := fmt.Errorf("join: %w", RoomNotFound("AB3X7Q"))
		assert.Equal(t, ErrCodeRoomNotFound, GetCode(err))
	})

	t.Run("returns internal for plain errors", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("boom")))
	})
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(RoomFull("AB3X7Q"), ErrCodeRoomFull))
	assert.False(t, HasCode(RoomFull("AB3X7Q"), ErrCodeRoomNotFound))
}
