package job_test

import (
	"context"
	"testing"

	"github.com/rockbears/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/sdk"
)

func TestMemoryStore(t *testing.T) {
	log.Factory = log.NewTestingWrapper(t)
	testStore(t, job.NewMemoryStore())
}

func TestMemoryStoreCopies(t *testing.T) {
	s := job.NewMemoryStore()
	limit := 3
	j := &sdk.Job{Name: "copy", Status: sdk.JobStatusPending, TargetIDs: sdk.StringSlice{"a"}, Policy: sdk.JobPolicy{VMLimit: &limit}}
	require.NoError(t, s.InsertJob(context.TODO(), j))

	j.TargetIDs[0] = "b"
	*j.Policy.VMLimit = 10

	res, err := s.LoadJob(context.TODO(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", res.TargetIDs[0])
	assert.Equal(t, 3, *res.Policy.VMLimit)
}

func TestMemoryStoreEmptyHealth(t *testing.T) {
	health, err := job.QueueHealth(context.TODO(), job.NewMemoryStore())
	require.NoError(t, err)
	assert.EqualValues(t, 0, health.QueueDepth)
	assert.Nil(t, health.LatestHeartbeat)
}
