package cli

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/jobs"
)

func TestTriggerEnqueuesKnownJob(t *testing.T) {
	mr := miniredis.RunT(t)
	helper, err := NewJobsCLI(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = helper.Close() })

	info, err := helper.Trigger(context.Background(), jobs.TaskQuotationsExpire)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskQuotationsExpire, info.Type)

	_, err = helper.Trigger(context.Background(), "finance:refresh")
	assert.Error(t, err)
}

func TestNilHelperReportsMisconfiguration(t *testing.T) {
	var helper *JobsCLI
	_, err := helper.Trigger(context.Background(), jobs.TaskInventoryLowStock)
	assert.Error(t, err)
	_, err = helper.InspectQueue(context.Background())
	assert.Error(t, err)
	_, err = helper.ListScheduled(context.Background(), 0)
	assert.Error(t, err)
}
