package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hostops/hops/sdk"
)

func TestParseJobNotification(t *testing.T) {
	id, status := parseJobNotification("6f1d2c1e-job:running")
	assert.Equal(t, "6f1d2c1e-job", id)
	assert.Equal(t, sdk.JobStatusRunning, status)

	id, status = parseJobNotification("no-status")
	assert.Equal(t, "no-status", id)
	assert.Empty(t, status)
}
