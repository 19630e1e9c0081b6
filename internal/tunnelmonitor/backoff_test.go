package tunnelmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoff_AttemptZeroDoesNotWait(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryBackoff(0))
}

func TestRetryBackoff_GrowsLinearlyThenCaps(t *testing.T) {
	assert.Equal(t, 4*time.Second, retryBackoff(1))
	assert.Equal(t, 8*time.Second, retryBackoff(2))
	assert.Equal(t, 12*time.Second, retryBackoff(3))
	assert.Equal(t, backoffMax, retryBackoff(4))
	assert.Equal(t, backoffMax, retryBackoff(100))
}
