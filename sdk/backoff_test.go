package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0, time.Second, time.Minute))
	assert.Equal(t, time.Second, Backoff(1, time.Second, time.Minute))
	assert.Equal(t, 4*time.Second, Backoff(3, time.Second, time.Minute))
	assert.Equal(t, 32*time.Second, Backoff(6, time.Second, time.Minute))
	assert.Equal(t, time.Minute, Backoff(7, time.Second, time.Minute))
	assert.Equal(t, time.Minute, Backoff(10000, time.Second, time.Minute))
	assert.Equal(t, time.Duration(0), Backoff(3, 0, time.Minute))
}
