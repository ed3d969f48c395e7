package tours

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/tour-engine/engine"
)

// =============================================================================
// CATALOG - staff, fleet and routes
// =============================================================================

// Catalog validates and stores the records the engine reads from.
type Catalog struct {
	store Store
	deps
}

func NewCatalog(store Store, opts ...Option) *Catalog {
	return &Catalog{store: store, deps: newDeps(opts)}
}

func (c *Catalog) AddEmployee(ctx context.Context, e Employee) (Employee, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return Employee{}, invalid("employee name is required")
	}
	if !e.Role.Valid() {
		return Employee{}, invalid("unknown role %q", e.Role)
	}
	if e.RemainingQuota < 0 {
		return Employee{}, invalid("remaining quota cannot be negative")
	}
	if e.ID == "" {
		e.ID = c.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if err := c.store.SaveEmployee(ctx, e); err != nil {
		return Employee{}, err
	}
	c.log.Info("employee saved", zap.String("employee_id", e.ID), zap.String("role", string(e.Role)))
	return e, nil
}

func (c *Catalog) Employee(ctx context.Context, id string) (Employee, error) {
	return c.store.GetEmployee(ctx, id)
}

func (c *Catalog) Employees(ctx context.Context) ([]Employee, error) {
	return c.store.ListEmployees(ctx)
}

func (c *Catalog) AddBus(ctx context.Context, b Bus) (Bus, error) {
	if b.SeatCapacity <= 0 {
		return Bus{}, invalid("seat capacity must be positive")
	}
	if b.ID == "" {
		b.ID = c.newID()
	}
	if err := c.store.SaveBus(ctx, b); err != nil {
		return Bus{}, err
	}
	c.log.Info("bus saved", zap.String("bus_id", b.ID), zap.Int("seats", b.SeatCapacity))
	return b, nil
}

func (c *Catalog) Buses(ctx context.Context) ([]Bus, error) {
	return c.store.ListBuses(ctx)
}

// AddRoute stores a route. Segments must be numbered 1..n in order and every
// distance must be positive, which is what AdjustFare requires of them.
func (c *Catalog) AddRoute(ctx context.Context, r Route) (Route, error) {
	if len(r.Segments) == 0 {
		return Route{}, invalid("route needs at least one segment")
	}
	for i, s := range r.Segments {
		if s.Index != i+1 {
			return Route{}, invalid("segment %d has index %d", i+1, s.Index)
		}
		if !s.Distance.IsPositive() {
			return Route{}, invalid("segment %d distance must be positive", s.Index)
		}
	}
	if r.ID == "" {
		r.ID = c.newID()
	}
	if err := c.store.SaveRoute(ctx, r); err != nil {
		return Route{}, err
	}
	if c.routes != nil {
		if err := c.routes.Invalidate(ctx, r.ID); err != nil {
			c.log.Warn("route cache invalidation failed", zap.String("route_id", r.ID), zap.Error(err))
		}
	}
	c.log.Info("route saved", zap.String("route_id", r.ID), zap.Int("segments", len(r.Segments)))
	return r, nil
}

func (c *Catalog) Route(ctx context.Context, id string) (Route, error) {
	if c.routes != nil {
		return c.routes.GetRoute(ctx, id)
	}
	return c.store.GetRoute(ctx, id)
}

func (c *Catalog) Routes(ctx context.Context) ([]Route, error) {
	return c.store.ListRoutes(ctx)
}

// Available lists employees of role free for a window, under the same
// filters the assignor applies.
func (c *Catalog) Available(ctx context.Context, role engine.Role, w engine.TimeWindow) ([]Employee, error) {
	candidates, err := c.store.ListCandidates(ctx, role)
	if err != nil {
		return nil, err
	}
	existing, err := c.store.ListCommitments(ctx, w.Start)
	if err != nil {
		return nil, err
	}

	byID := make(map[engine.ResourceID]Employee, len(candidates))
	snap := make([]engine.Employee, len(candidates))
	for i, e := range candidates {
		byID[engine.ResourceID(e.ID)] = e
		snap[i] = e.Snapshot()
	}

	free := (&engine.Assignor{}).Available(w, snap, existing)
	out := make([]Employee, 0, len(free))
	for _, f := range free {
		out = append(out, byID[f.ID])
	}
	return out, nil
}
