package schedule_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/operion-engine/pkg/mocks"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence/memory"
	"github.com/dukex/operion-engine/pkg/sources/schedule"
	"github.com/dukex/operion-engine/pkg/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingFirer struct {
	mu       sync.Mutex
	requests []trigger.FireRequest
	err      error
}

func (f *recordingFirer) Fire(_ context.Context, req trigger.FireRequest) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	return &models.Task{TaskID: "task-" + req.TriggerID, FlowSessionID: "session"}, nil
}

func (f *recordingFirer) all() []trigger.FireRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]trigger.FireRequest(nil), f.requests...)
}

func newSchedule(id, expression string, active bool) *models.Schedule {
	return &models.Schedule{
		ID:             id,
		AccountID:      "account-1",
		FlowID:         "flow-1",
		FlowVersionID:  "fv-1",
		Stage:          models.StageTesting,
		CronExpression: expression,
		Active:         active,
	}
}

func TestSource_StartRegistersActiveSchedules(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	require.NoError(t, store.ScheduleRepository().Save(ctx, newSchedule("hourly", "0 * * * *", true)))
	require.NoError(t, store.ScheduleRepository().Save(ctx, newSchedule("paused", "0 * * * *", false)))
	require.NoError(t, store.ScheduleRepository().Save(ctx, newSchedule("broken", "not a cron", true)))

	source := schedule.New(slog.New(slog.DiscardHandler), store.ScheduleRepository(), &recordingFirer{})
	require.NoError(t, source.Start(ctx))
	defer func() { _ = source.Stop(ctx) }()

	assert.Equal(t, 1, source.Len())

	require.NoError(t, store.ScheduleRepository().Save(ctx, newSchedule("paused", "0 * * * *", true)))
	require.NoError(t, source.Reload(ctx))
	assert.Equal(t, 2, source.Len())
}

func TestSource_JobFiresTrigger(t *testing.T) {
	firer := &recordingFirer{}
	source := schedule.New(slog.New(slog.DiscardHandler), memory.NewPersistence().ScheduleRepository(), firer)

	source.Job(newSchedule("daily", "0 0 * * *", true)).Run()

	requests := firer.all()
	require.Len(t, requests, 1)

	req := requests[0]
	assert.Equal(t, "account-1", req.AccountID)
	assert.Equal(t, "fv-1", req.FlowVersionID)
	assert.Equal(t, models.StageTesting, req.Stage)
	assert.Equal(t, "daily", req.TriggerID)

	var payload map[string]string

	require.NoError(t, json.Unmarshal(req.Payload, &payload))
	assert.Equal(t, "daily", payload["schedule_id"])
	assert.NotEmpty(t, payload["fired_at"])
}

func TestSource_JobErrorIsLogged(t *testing.T) {
	firer := &recordingFirer{err: errors.New("flow version not found")}
	source := schedule.New(slog.New(slog.DiscardHandler), memory.NewPersistence().ScheduleRepository(), firer)

	assert.NotPanics(t, func() { source.Job(newSchedule("daily", "0 0 * * *", true)).Run() })
	assert.Len(t, firer.all(), 1)
}

func TestSource_FiresOnTick(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	firer := &recordingFirer{}

	require.NoError(t, store.ScheduleRepository().Save(ctx, newSchedule("fast", "@every 1s", true)))

	source := schedule.New(slog.New(slog.DiscardHandler), store.ScheduleRepository(), firer)
	require.NoError(t, source.Start(ctx))

	require.Eventually(t, func() bool { return len(firer.all()) > 0 }, 3*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	require.NoError(t, source.Stop(stopCtx))
}

type panickingFirer struct {
	calls atomic.Int32
}

func (f *panickingFirer) Fire(_ context.Context, _ trigger.FireRequest) (*models.Task, error) {
	f.calls.Add(1)

	panic("firer exploded")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestSource_RecoversPanickingJob(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	firer := &panickingFirer{}
	output := &lockedBuffer{}

	require.NoError(t, store.ScheduleRepository().Save(ctx, newSchedule("fast", "@every 1s", true)))

	source := schedule.New(slog.New(slog.NewTextHandler(output, nil)), store.ScheduleRepository(), firer)
	require.NoError(t, source.Start(ctx))

	require.Eventually(t, func() bool { return firer.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	logs := output.String()
	assert.Contains(t, logs, "level=ERROR msg=panic")
	assert.Contains(t, logs, "firer exploded")
	assert.Contains(t, logs, "module=schedule_source")

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	require.NoError(t, source.Stop(stopCtx))
}

func TestSource_ReloadKeepsEntriesOnLoadError(t *testing.T) {
	schedules := &mocks.MockScheduleRepository{}
	schedules.On("Active", mock.Anything).Return([]*models.Schedule{
		{ID: "s-1", CronExpression: "@every 1h", Active: true},
	}, nil).Once()
	schedules.On("Active", mock.Anything).Return(nil, errors.New("database is gone")).Once()

	source := schedule.New(slog.New(slog.DiscardHandler), schedules, &recordingFirer{})

	require.NoError(t, source.Reload(context.Background()))
	assert.Equal(t, 1, source.Len())

	err := source.Reload(context.Background())
	require.ErrorContains(t, err, "database is gone")
	assert.Equal(t, 1, source.Len())

	schedules.AssertExpectations(t)
}
