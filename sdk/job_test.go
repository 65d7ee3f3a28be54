package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestJobSubmissionIsValid(t *testing.T) {
	valid := JobSubmission{
		Name:       "maintenance",
		Type:       JobTypeMaintenanceMode,
		TargetIDs:  []string{"esxi-1", "esxi-2"},
		TargetType: TargetTypeHost,
		CreatedBy:  "alice",
		Policy:     JobPolicy{AllowVMShutdown: true, VMLimit: intPtr(10)},
	}
	require.NoError(t, valid.IsValid())

	tests := []struct {
		name   string
		modify func(s *JobSubmission)
		want   Error
	}{
		{"unknown type", func(s *JobSubmission) { s.Type = "reboot" }, ErrWrongRequest},
		{"wrong target type", func(s *JobSubmission) { s.TargetType = TargetTypeServer }, ErrWrongRequest},
		{"no target", func(s *JobSubmission) { s.TargetIDs = nil }, ErrWrongRequest},
		{"duplicate target", func(s *JobSubmission) { s.TargetIDs = []string{"a", "a"} }, ErrWrongRequest},
		{"empty target", func(s *JobSubmission) { s.TargetIDs = []string{"a", ""} }, ErrWrongRequest},
		{"no creator", func(s *JobSubmission) { s.CreatedBy = "" }, ErrWrongRequest},
		{"negative vm limit", func(s *JobSubmission) { s.Policy.VMLimit = intPtr(-1) }, ErrInvalidPolicy},
		{"negative timeout", func(s *JobSubmission) { s.Policy.ShutdownTimeoutSeconds = -3 }, ErrInvalidPolicy},
		{"empty filter", func(s *JobSubmission) { s.Policy.TagFilters = []string{""} }, ErrInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.Policy.TagFilters = nil
			tt.modify(&s)
			err := s.IsValid()
			require.Error(t, err)
			assert.True(t, ErrorIs(err, tt.want), "got %v", err)
		})
	}
}

func TestJobPolicyValidateForType(t *testing.T) {
	// inventory sync does not use any VM related field
	err := JobPolicy{AllowHardPoweroff: true}.ValidateFor(JobTypeInventorySync)
	require.Error(t, err)
	assert.True(t, ErrorIs(err, ErrInvalidPolicy))

	// drs evacuation never hard powers off
	require.Error(t, JobPolicy{AllowHardPoweroff: true}.ValidateFor(JobTypeDRSEvacuation))

	// firmware updates act on servers, not VMs
	require.Error(t, JobPolicy{VMLimit: intPtr(2)}.ValidateFor(JobTypeFirmwareUpdate))
	require.NoError(t, JobPolicy{AllowHardPoweroff: true, TagFilters: []string{"rack-1"}}.ValidateFor(JobTypeFirmwareUpdate))

	// flags shared by every job type
	for jt := range JobTypeSpecs {
		require.NoError(t, JobPolicy{AbortOnError: true, RequireApproval: true}.ValidateFor(jt), jt)
		assert.False(t, jt.IsParallelizable(), jt)
	}
}

func TestJobPolicyNormalize(t *testing.T) {
	p := JobPolicy{VMLimit: intPtr(0)}.Normalize()
	assert.Nil(t, p.VMLimit)

	p = JobPolicy{VMLimit: intPtr(3)}.Normalize()
	require.NotNil(t, p.VMLimit)
	assert.Equal(t, 3, *p.VMLimit)

	assert.Equal(t, DefaultShutdownTimeout, JobPolicy{}.ShutdownTimeout())
	assert.Equal(t, "30s", JobPolicy{ShutdownTimeoutSeconds: 30}.ShutdownTimeout().String())
}

func TestJobPolicyScan(t *testing.T) {
	p := JobPolicy{AllowVMShutdown: true, VMLimit: intPtr(4), FolderFilters: []string{"/dc/prod"}}
	v, err := p.Value()
	require.NoError(t, err)

	var res JobPolicy
	require.NoError(t, res.Scan(v))
	assert.Equal(t, p, res)
}

func TestComputeProgress(t *testing.T) {
	steps := []JobStep{
		{Status: StepStatusCompleted},
		{Status: StepStatusSkipped},
		{Status: StepStatusRunning},
	}
	assert.Equal(t, 66, ComputeProgress(steps))
	assert.Equal(t, 0, ComputeProgress(nil))
	steps[2].Status = StepStatusFailed
	assert.Equal(t, 100, ComputeProgress(steps))
}

func TestJobIsApproved(t *testing.T) {
	j := Job{Policy: JobPolicy{RequireApproval: true}}
	assert.False(t, j.IsApproved())
	by := "bob"
	j.ApprovedBy = &by
	assert.True(t, j.IsApproved())
	assert.True(t, Job{}.IsApproved())
}
