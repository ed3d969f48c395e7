package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/tours"
)

// Sender delivers one notice to a person (mail, push, SMS).
type Sender interface {
	Send(ctx context.Context, n tours.AssignmentNotice) error
}

// LogSender writes the notice to the logger.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, n tours.AssignmentNotice) error {
	logNotice(s.Log, n)
	return nil
}

// HandleTourAssigned decodes a tour:assigned task and passes it to sender.
// Undecodable payloads are not retried.
func HandleTourAssigned(sender Sender, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := decode(task)
		if err != nil {
			log.Error("invalid assignment payload", zap.Error(err))
			return fmt.Errorf("notify: decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if n.TourID == "" || n.EmployeeID == "" {
			return fmt.Errorf("notify: incomplete payload: %w", asynq.SkipRetry)
		}
		if err := sender.Send(ctx, n); err != nil {
			log.Warn("assignment notice not delivered",
				zap.String("tour_id", n.TourID), zap.String("employee_id", n.EmployeeID), zap.Error(err))
			return err
		}
		return nil
	}
}

// Worker consumes the notification queue.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *zap.Logger
}

func NewWorker(redis asynq.RedisClientOpt, concurrency int, sender Sender, log *zap.Logger) *Worker {
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			if errors.Is(err, asynq.SkipRetry) {
				return
			}
			log.Warn("notification task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTourAssigned, HandleTourAssigned(sender, log))
	return &Worker{srv: srv, mux: mux, log: log}
}

// Run blocks until the process receives SIGTERM or SIGINT.
func (w *Worker) Run() error {
	w.log.Info("notification worker starting", zap.String("queue", QueueName))
	return w.srv.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
