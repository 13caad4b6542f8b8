package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobBeforeCreateDefaults(t *testing.T) {
	j := &Job{TenantID: 1, EventType: JobEventText}
	require.NoError(t, j.BeforeCreate(nil))

	assert.Len(t, j.ID, 36)
	assert.Equal(t, JobStatusQueued, j.Status)
	assert.Equal(t, DefaultJobMaxAttempts, j.MaxAttempts)
}

func TestValidJobStatus(t *testing.T) {
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed, JobStatusDead, JobStatusIgnored} {
		assert.True(t, ValidJobStatus(string(s)), string(s))
	}
	assert.False(t, ValidJobStatus("terminal"))
	assert.False(t, ValidJobStatus(""))
}

func TestRuleValidate(t *testing.T) {
	ok := &Rule{ProjectID: 1, MatcherType: MatcherPrefix, Pattern: "#todo", DatabaseID: "D1"}
	assert.NoError(t, ok.Validate())

	bad := &Rule{ProjectID: 1, MatcherType: "glob", DatabaseID: "D1"}
	assert.Error(t, bad.Validate())

	missingDB := &Rule{ProjectID: 1, MatcherType: MatcherRegex}
	assert.Error(t, missingDB.Validate())
}
