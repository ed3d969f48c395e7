package tours

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tour-engine/engine"
)

// =============================================================================
// SCHEDULER - tour creation and resource assignment
// =============================================================================

// Scheduler creates tours and staffs them through the engine's Assignor.
type Scheduler struct {
	store    TxStore
	assignor *engine.Assignor
	deps
}

func NewScheduler(store TxStore, opts ...Option) *Scheduler {
	return &Scheduler{store: store, assignor: &engine.Assignor{}, deps: newDeps(opts)}
}

type CreateTourRequest struct {
	RouteID     string
	Name        string
	DepartureAt time.Time
	Duration    time.Duration
}

func (r CreateTourRequest) validate(now time.Time) error {
	if strings.TrimSpace(r.RouteID) == "" {
		return invalid("route_id is required")
	}
	if r.DepartureAt.IsZero() {
		return invalid("departure is required")
	}
	if r.Duration <= 0 {
		return invalid("duration must be positive")
	}
	if !r.DepartureAt.After(now) {
		return invalid("departure must be in the future")
	}
	return nil
}

// ScheduleResult is a saved tour plus, when unassigned, what was missing.
type ScheduleResult struct {
	Tour      Tour
	Shortages []engine.Shortage
}

func (r ScheduleResult) Assigned() bool { return r.Tour.Assigned() }

// CreateTour saves a tour and assigns a guide, a driver and a bus when the
// pool allows it. A tour that cannot be staffed is still saved, as
// unassigned, and the shortages are returned.
func (s *Scheduler) CreateTour(ctx context.Context, req CreateTourRequest) (ScheduleResult, error) {
	now := s.now()
	if err := req.validate(now); err != nil {
		return ScheduleResult{}, err
	}

	var res ScheduleResult
	err := s.retry("create_tour", func() error {
		return s.store.WithTx(ctx, func(st Store) error {
			if _, err := st.GetRoute(ctx, req.RouteID); err != nil {
				return err
			}
			tour := Tour{
				ID:          s.newID(),
				RouteID:     req.RouteID,
				Name:        strings.TrimSpace(req.Name),
				DepartureAt: req.DepartureAt.UTC(),
				Duration:    req.Duration,
				Status:      TourUnassigned,
				CreatedAt:   now,
			}
			out, err := s.assign(ctx, st, &tour)
			if err != nil {
				return err
			}
			if err := st.SaveTour(ctx, tour); err != nil {
				return err
			}
			res = ScheduleResult{Tour: tour, Shortages: out.Shortages}
			return nil
		})
	})
	if err != nil {
		return ScheduleResult{}, err
	}

	s.after(ctx, res)
	return res, nil
}

// PendingReport is the outcome of one AssignPending pass.
type PendingReport struct {
	Assigned []Tour
	Pending  []ScheduleResult
}

// AssignPending retries assignment for unassigned tours that have not yet
// departed, earliest first. Each tour is its own transaction, so a tour
// staffed early in the pass is a commitment for the ones after it.
func (s *Scheduler) AssignPending(ctx context.Context) (PendingReport, error) {
	pending, err := s.store.ListUnassignedTours(ctx, s.now())
	if err != nil {
		return PendingReport{}, err
	}

	var report PendingReport
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var res ScheduleResult
		var skip bool
		err := s.retry("assign_pending", func() error {
			return s.store.WithTx(ctx, func(st Store) error {
				tour, err := st.LockTour(ctx, p.ID)
				if err != nil {
					return err
				}
				if tour.Status != TourUnassigned {
					skip = true
					return nil
				}
				out, err := s.assign(ctx, st, &tour)
				if err != nil {
					return err
				}
				if out.Assigned() {
					if err := st.SaveTour(ctx, tour); err != nil {
						return err
					}
				}
				res = ScheduleResult{Tour: tour, Shortages: out.Shortages}
				return nil
			})
		})
		if err != nil {
			return report, err
		}
		if skip {
			continue
		}

		s.after(ctx, res)
		if res.Assigned() {
			report.Assigned = append(report.Assigned, res.Tour)
		} else {
			report.Pending = append(report.Pending, res)
		}
	}

	s.log.Info("pending tours processed",
		zap.Int("assigned", len(report.Assigned)), zap.Int("still_pending", len(report.Pending)))
	return report, nil
}

// assign reads the pool inside st, runs the assignor and, on success, writes
// the decremented quotas and marks the tour scheduled. The tour itself is
// not saved.
func (s *Scheduler) assign(ctx context.Context, st Store, tour *Tour) (engine.Outcome, error) {
	window := tour.Window()

	guides, err := st.ListCandidates(ctx, engine.RoleTourGuide)
	if err != nil {
		return engine.Outcome{}, err
	}
	drivers, err := st.ListCandidates(ctx, engine.RoleDriver)
	if err != nil {
		return engine.Outcome{}, err
	}
	buses, err := st.ListActiveBuses(ctx)
	if err != nil {
		return engine.Outcome{}, err
	}
	existing, err := st.ListCommitments(ctx, window.Start)
	if err != nil {
		return engine.Outcome{}, err
	}

	pool := engine.ResourcePool{Existing: existing}
	for _, g := range guides {
		pool.Guides = append(pool.Guides, g.Snapshot())
	}
	for _, d := range drivers {
		pool.Drivers = append(pool.Drivers, d.Snapshot())
	}
	for _, b := range buses {
		pool.Buses = append(pool.Buses, b.Snapshot())
	}

	out := s.assignor.Assign(window, pool)
	if !out.Assigned() {
		return out, nil
	}

	if err := st.SetRemainingQuota(ctx, string(out.Guide.ID), out.Guide.RemainingQuota); err != nil {
		return engine.Outcome{}, err
	}
	if err := st.SetRemainingQuota(ctx, string(out.Driver.ID), out.Driver.RemainingQuota); err != nil {
		return engine.Outcome{}, err
	}
	tour.GuideID = string(out.Guide.ID)
	tour.DriverID = string(out.Driver.ID)
	tour.BusID = string(out.Bus.ID)
	tour.Status = TourScheduled
	return out, nil
}

// after runs once the decision is committed: metrics, logs and staff
// notifications. Notification failures are logged and never undo the tour.
func (s *Scheduler) after(ctx context.Context, res ScheduleResult) {
	t := res.Tour
	if !res.Assigned() {
		s.metrics.AssignmentDecided("unassigned")
		shortages := make([]string, len(res.Shortages))
		for i, sh := range res.Shortages {
			shortages[i] = string(sh)
		}
		s.log.Info("tour left unassigned",
			zap.String("tour_id", t.ID), zap.Time("departure", t.DepartureAt), zap.Strings("shortages", shortages))
		return
	}

	s.metrics.AssignmentDecided("assigned")
	s.log.Info("tour scheduled",
		zap.String("tour_id", t.ID),
		zap.String("guide_id", t.GuideID),
		zap.String("driver_id", t.DriverID),
		zap.String("bus_id", t.BusID))

	if s.notifier == nil {
		return
	}
	w := t.Window()
	notices := []AssignmentNotice{
		{TourID: t.ID, TourName: t.Name, EmployeeID: t.GuideID, Role: engine.RoleTourGuide, DepartureAt: w.Start, ReturnAt: w.End, BusID: t.BusID},
		{TourID: t.ID, TourName: t.Name, EmployeeID: t.DriverID, Role: engine.RoleDriver, DepartureAt: w.Start, ReturnAt: w.End, BusID: t.BusID},
	}
	for _, n := range notices {
		if err := s.notifier.TourAssigned(ctx, n); err != nil {
			s.log.Error("assignment notification failed",
				zap.String("tour_id", t.ID), zap.String("employee_id", n.EmployeeID), zap.Error(err))
		}
	}
}

// Tour and Tours are read-through helpers for the API.
func (s *Scheduler) Tour(ctx context.Context, id string) (Tour, error) {
	return s.store.GetTour(ctx, id)
}

func (s *Scheduler) Tours(ctx context.Context, f TourFilter) ([]Tour, error) {
	return s.store.ListTours(ctx, f)
}
