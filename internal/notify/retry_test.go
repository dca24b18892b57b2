package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   deliveryResult
	}{
		{200, deliveryOK},
		{202, deliveryOK},
		{400, deliveryPermanent},
		{401, deliveryPermanent},
		{422, deliveryPermanent},
		{429, deliveryRetry},
		{500, deliveryRetry},
		{503, deliveryRetry},
		{302, deliveryPermanent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.status), "status %d", tt.status)
	}
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(200*time.Millisecond, 0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(200*time.Millisecond, 1))
	assert.Equal(t, 800*time.Millisecond, retryDelay(200*time.Millisecond, 2))
	assert.Equal(t, maxRetryDelay, retryDelay(200*time.Millisecond, 10))
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
