package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&InsufficientStockError{ProductID: "p1"}))
	assert.True(t, Retryable(fmt.Errorf("commit: %w", &ConflictError{Err: errors.New("40001")})))
	assert.True(t, Retryable(&TimeoutError{Op: "create", Err: context.DeadlineExceeded}))
	assert.False(t, Retryable(Invalid("items", "empty")))
	assert.False(t, Retryable(&OverRefundError{ProductID: "p1"}))
	assert.False(t, Retryable(nil))
}

func TestTimeoutUnwraps(t *testing.T) {
	err := &TimeoutError{Op: "refund", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "refund: transaction timed out", err.Error())
}
