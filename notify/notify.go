/*
Package notify delivers assignment notices to staff.

FLOW:
  Scheduler -> Queue.TourAssigned -> asynq "tour:assigned" -> Worker
            -> HandleTourAssigned -> Sender

  When Redis is not configured the server uses Log, which writes the notice
  to the logger and returns.
*/
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

const TypeTourAssigned = "tour:assigned"

// QueueName is the asynq queue assignment notices go to.
const QueueName = "notifications"

type payload struct {
	TourID      string    `json:"tour_id"`
	TourName    string    `json:"tour_name"`
	EmployeeID  string    `json:"employee_id"`
	Role        string    `json:"role"`
	DepartureAt time.Time `json:"departure_at"`
	ReturnAt    time.Time `json:"return_at"`
	BusID       string    `json:"bus_id"`
}

func NewTourAssignedTask(n tours.AssignmentNotice) (*asynq.Task, error) {
	b, err := json.Marshal(payload{
		TourID:      n.TourID,
		TourName:    n.TourName,
		EmployeeID:  n.EmployeeID,
		Role:        string(n.Role),
		DepartureAt: n.DepartureAt,
		ReturnAt:    n.ReturnAt,
		BusID:       n.BusID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTourAssigned, b), nil
}

func decode(t *asynq.Task) (tours.AssignmentNotice, error) {
	var p payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return tours.AssignmentNotice{}, err
	}
	return tours.AssignmentNotice{
		TourID:      p.TourID,
		TourName:    p.TourName,
		EmployeeID:  p.EmployeeID,
		Role:        engine.Role(p.Role),
		DepartureAt: p.DepartureAt,
		ReturnAt:    p.ReturnAt,
		BusID:       p.BusID,
	}, nil
}

// =============================================================================
// PRODUCER
// =============================================================================

// Enqueuer is the part of *asynq.Client the queue uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue is a tours.Notifier that hands notices to asynq.
type Queue struct {
	client   Enqueuer
	log      *zap.Logger
	maxRetry int
}

var _ tours.Notifier = (*Queue)(nil)

func NewQueue(client Enqueuer, maxRetry int, log *zap.Logger) *Queue {
	return &Queue{client: client, maxRetry: maxRetry, log: log}
}

func (q *Queue) TourAssigned(ctx context.Context, n tours.AssignmentNotice) error {
	task, err := NewTourAssignedTask(n)
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", TypeTourAssigned, err)
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(q.maxRetry),
		asynq.TaskID(fmt.Sprintf("%s:%s", n.TourID, n.EmployeeID)),
	)
	if err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", TypeTourAssigned, err)
	}
	q.log.Debug("assignment notice enqueued",
		zap.String("task_id", info.ID), zap.String("tour_id", n.TourID), zap.String("employee_id", n.EmployeeID))
	return nil
}

// =============================================================================
// DIRECT LOGGING
// =============================================================================

// Log is a tours.Notifier that only logs. Used when no queue is configured.
type Log struct {
	log *zap.Logger
}

var _ tours.Notifier = (*Log)(nil)

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) TourAssigned(_ context.Context, n tours.AssignmentNotice) error {
	logNotice(l.log, n)
	return nil
}

func logNotice(log *zap.Logger, n tours.AssignmentNotice) {
	log.Info("tour assigned",
		zap.String("tour_id", n.TourID),
		zap.String("tour_name", n.TourName),
		zap.String("employee_id", n.EmployeeID),
		zap.String("role", string(n.Role)),
		zap.Time("departure", n.DepartureAt),
		zap.Time("return", n.ReturnAt),
		zap.String("bus_id", n.BusID))
}
