package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/notify"
	"github.com/warp/tour-engine/tours"
)

var notice = tours.AssignmentNotice{
	TourID:      "t1",
	TourName:    "Coast",
	EmployeeID:  "g1",
	Role:        engine.RoleTourGuide,
	DepartureAt: time.Date(2025, time.June, 3, 9, 0, 0, 0, time.UTC),
	ReturnAt:    time.Date(2025, time.June, 3, 11, 0, 0, 0, time.UTC),
	BusID:       "bus-a",
}

type sender struct {
	got []tours.AssignmentNotice
	err error
}

func (s *sender) Send(_ context.Context, n tours.AssignmentNotice) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, n)
	return nil
}

type enqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *enqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestQueueToHandler(t *testing.T) {
	// GIVEN: a notice enqueued through Queue
	// WHEN:  the handler processes the enqueued task
	// THEN:  the sender receives the same notice
	q := &enqueuer{}
	s := &sender{}

	require.NoError(t, notify.NewQueue(q, 5, zap.NewNop()).TourAssigned(context.Background(), notice))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, notify.TypeTourAssigned, q.tasks[0].Type())

	err := notify.HandleTourAssigned(s, zap.NewNop())(context.Background(), q.tasks[0])

	require.NoError(t, err)
	require.Len(t, s.got, 1)
	assert.Equal(t, notice, s.got[0])
}

func TestQueue_EnqueueFailure(t *testing.T) {
	q := &enqueuer{err: errors.New("redis down")}

	err := notify.NewQueue(q, 5, zap.NewNop()).TourAssigned(context.Background(), notice)

	assert.ErrorContains(t, err, "redis down")
}

func TestHandleTourAssigned_BadPayloadSkipsRetry(t *testing.T) {
	h := notify.HandleTourAssigned(&sender{}, zap.NewNop())

	err := h(context.Background(), asynq.NewTask(notify.TypeTourAssigned, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h(context.Background(), asynq.NewTask(notify.TypeTourAssigned, []byte(`{"tour_id":""}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleTourAssigned_SenderFailureIsRetried(t *testing.T) {
	task, err := notify.NewTourAssignedTask(notice)
	require.NoError(t, err)
	boom := errors.New("smtp timeout")

	err = notify.HandleTourAssigned(&sender{err: boom}, zap.NewNop())(context.Background(), task)

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	require.NoError(t, notify.NewLog(zap.New(core)).TourAssigned(context.Background(), notice))

	entries := logs.FilterMessage("tour assigned").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "g1", entries[0].ContextMap()["employee_id"])
	assert.Equal(t, "tour_guide", entries[0].ContextMap()["role"])
}
