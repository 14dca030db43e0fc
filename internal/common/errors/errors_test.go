package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserInputIsClientFacing(t *testing.T) {
	err := UserInputf("Ticket %d has not been called yet.", 7)

	assert.True(t, IsUserInput(err))
	assert.False(t, err.IsInternal())
	assert.Equal(t, "Ticket 7 has not been called yet.", err.Message)
}

func TestAsAppErrorFollowsWrapChain(t *testing.T) {
	inner := UserInput("No history available.")
	wrapped := fmt.Errorf("undo: %w", inner)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, appErr)
	assert.True(t, IsUserInput(wrapped))
}

func TestStorageErrorIsInternal(t *testing.T) {
	err := NewStorageError("write state", fmt.Errorf("disk full"))

	assert.False(t, IsUserInput(err))
	assert.True(t, err.IsInternal())
	assert.Equal(t, ErrCodeStorageError, err.Code)
	assert.ErrorContains(t, err, "disk full")
}

func TestDeadlineExceededBecomesTimeout(t *testing.T) {
	err := NewDatabaseError("select current state", fmt.Errorf("query: %w", context.DeadlineExceeded))

	assert.Equal(t, ErrCodeTimeout, err.Code)
	assert.True(t, HasCode(err, ErrCodeTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJSONHidesStackAndCause(t *testing.T) {
	err := Wrap(fmt.Errorf("secret dsn"), ErrCodeDatabaseError, "Database operation failed")
	err.WithContext("path", "/api/v1/state")

	data, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)

	assert.NotContains(t, string(data), "secret dsn")
	assert.NotContains(t, string(data), "stack")
	assert.NotContains(t, string(data), "/api/v1/state")
	assert.NotEmpty(t, err.Stack)
}

func TestPlainErrorIsNotUserInput(t *testing.T) {
	assert.False(t, IsUserInput(fmt.Errorf("boom")))
	assert.False(t, IsUserInput(nil))
}
