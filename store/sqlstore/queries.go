package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

// executor is satisfied by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements tours.Store against one executor. Store uses it on the
// pool; WithTx hands the callback a queries bound to the transaction.
type queries struct {
	exec    executor
	sb      squirrel.StatementBuilderType
	dialect Dialect
}

func newQueries(exec executor, d Dialect) *queries {
	return &queries{exec: exec, sb: d.builder(), dialect: d}
}

var (
	employeeColumns = []string{"id", "name", "email", "role", "remaining_quota", "created_at"}
	busColumns      = []string{"id", "plate", "seat_capacity", "active"}
	tourColumns     = []string{"id", "route_id", "name", "departure_at", "duration_seconds", "guide_id", "driver_id", "bus_id", "status", "created_at"}
	bookingColumns  = []string{"id", "tour_id", "customer_id", "tickets_json", "products_json", "quantity", "boarding_index", "status", "total_price", "paid_amount", "payment_ref", "refunded_amount", "created_at", "updated_at"}
)

// =============================================================================
// STAFF
// =============================================================================

func (q *queries) GetEmployee(ctx context.Context, id string) (tours.Employee, error) {
	b := q.sb.Select(employeeColumns...).From("employees").Where(squirrel.Eq{"id": id})
	return get(ctx, q, "GetEmployee", b, scanEmployee, tours.ErrEmployeeNotFound)
}

func (q *queries) ListEmployees(ctx context.Context) ([]tours.Employee, error) {
	b := q.sb.Select(employeeColumns...).From("employees").OrderBy("id")
	return list(ctx, q, "ListEmployees", b, scanEmployee)
}

func (q *queries) ListCandidates(ctx context.Context, role engine.Role) ([]tours.Employee, error) {
	b := q.sb.Select(employeeColumns...).From("employees").
		Where(squirrel.Eq{"role": string(role)}).
		Where(squirrel.Gt{"remaining_quota": 0}).
		OrderBy("remaining_quota DESC", "id ASC")
	return list(ctx, q, "ListCandidates", b, scanEmployee)
}

func (q *queries) SaveEmployee(ctx context.Context, e tours.Employee) error {
	return q.upsert(ctx, "SaveEmployee", "employees", employeeColumns,
		e.ID, e.Name, e.Email, string(e.Role), e.RemainingQuota, formatTime(e.CreatedAt))
}

func (q *queries) SetRemainingQuota(ctx context.Context, id string, quota int) error {
	query, args, err := q.sb.Update("employees").
		Set("remaining_quota", quota).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: SetRemainingQuota - build update: %v", ErrBuildQuery, err)
	}
	res, err := q.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return q.dialect.wrap("SetRemainingQuota - execute update", ErrExecQuery, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tours.ErrEmployeeNotFound
	}
	return nil
}

func scanEmployee(row scanner) (tours.Employee, error) {
	var e tours.Employee
	var role, created string
	if err := row.Scan(&e.ID, &e.Name, &e.Email, &role, &e.RemainingQuota, &created); err != nil {
		return tours.Employee{}, err
	}
	e.Role = engine.Role(role)
	t, err := parseTime(created)
	if err != nil {
		return tours.Employee{}, err
	}
	e.CreatedAt = t
	return e, nil
}

// =============================================================================
// FLEET
// =============================================================================

func (q *queries) GetBus(ctx context.Context, id string) (tours.Bus, error) {
	b := q.sb.Select(busColumns...).From("buses").Where(squirrel.Eq{"id": id})
	return get(ctx, q, "GetBus", b, scanBus, tours.ErrBusNotFound)
}

func (q *queries) ListBuses(ctx context.Context) ([]tours.Bus, error) {
	b := q.sb.Select(busColumns...).From("buses").OrderBy("id")
	return list(ctx, q, "ListBuses", b, scanBus)
}

func (q *queries) ListActiveBuses(ctx context.Context) ([]tours.Bus, error) {
	b := q.sb.Select(busColumns...).From("buses").
		Where(squirrel.Eq{"active": true}).
		OrderBy("seat_capacity DESC", "id ASC")
	return list(ctx, q, "ListActiveBuses", b, scanBus)
}

func (q *queries) SaveBus(ctx context.Context, b tours.Bus) error {
	return q.upsert(ctx, "SaveBus", "buses", busColumns, b.ID, b.Plate, b.SeatCapacity, b.Active)
}

func scanBus(row scanner) (tours.Bus, error) {
	var b tours.Bus
	err := row.Scan(&b.ID, &b.Plate, &b.SeatCapacity, &b.Active)
	return b, err
}

// =============================================================================
// ROUTES
// =============================================================================

func (q *queries) GetRoute(ctx context.Context, id string) (tours.Route, error) {
	b := q.sb.Select("id", "name").From("routes").Where(squirrel.Eq{"id": id})
	r, err := get(ctx, q, "GetRoute", b, scanRouteHeader, tours.ErrRouteNotFound)
	if err != nil {
		return tours.Route{}, err
	}
	segs, err := q.segments(ctx, []string{id})
	if err != nil {
		return tours.Route{}, err
	}
	r.Segments = segs[id]
	return r, nil
}

func (q *queries) ListRoutes(ctx context.Context) ([]tours.Route, error) {
	b := q.sb.Select("id", "name").From("routes").OrderBy("id")
	routes, err := list(ctx, q, "ListRoutes", b, scanRouteHeader)
	if err != nil || len(routes) == 0 {
		return routes, err
	}
	ids := make([]string, len(routes))
	for i, r := range routes {
		ids[i] = r.ID
	}
	segs, err := q.segments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		routes[i].Segments = segs[routes[i].ID]
	}
	return routes, nil
}

// SaveRoute upserts the header and rewrites the segments. Store.SaveRoute
// wraps it in a transaction.
func (q *queries) SaveRoute(ctx context.Context, r tours.Route) error {
	if err := q.upsert(ctx, "SaveRoute", "routes", []string{"id", "name"}, r.ID, r.Name); err != nil {
		return err
	}

	query, args, err := q.sb.Delete("route_segments").Where(squirrel.Eq{"route_id": r.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: SaveRoute - build delete: %v", ErrBuildQuery, err)
	}
	if _, err := q.exec.ExecContext(ctx, query, args...); err != nil {
		return q.dialect.wrap("SaveRoute - delete segments", ErrExecQuery, err)
	}

	if len(r.Segments) == 0 {
		return nil
	}
	ins := q.sb.Insert("route_segments").Columns("route_id", "idx", "station", "distance")
	for _, s := range r.Segments {
		ins = ins.Values(r.ID, s.Index, s.Station, s.Distance.String())
	}
	query, args, err = ins.ToSql()
	if err != nil {
		return fmt.Errorf("%w: SaveRoute - build insert: %v", ErrBuildQuery, err)
	}
	if _, err := q.exec.ExecContext(ctx, query, args...); err != nil {
		return q.dialect.wrap("SaveRoute - insert segments", ErrExecQuery, err)
	}
	return nil
}

func (q *queries) segments(ctx context.Context, routeIDs []string) (map[string][]tours.Segment, error) {
	b := q.sb.Select("route_id", "idx", "station", "distance").From("route_segments").
		Where(squirrel.Eq{"route_id": routeIDs}).
		OrderBy("route_id", "idx")
	rows, err := list(ctx, q, "segments", b, scanSegment)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]tours.Segment, len(routeIDs))
	for _, r := range rows {
		out[r.routeID] = append(out[r.routeID], r.Segment)
	}
	return out, nil
}

type segmentRow struct {
	routeID string
	tours.Segment
}

func scanSegment(row scanner) (segmentRow, error) {
	var s segmentRow
	err := row.Scan(&s.routeID, &s.Index, &s.Station, &s.Distance)
	return s, err
}

func scanRouteHeader(row scanner) (tours.Route, error) {
	var r tours.Route
	err := row.Scan(&r.ID, &r.Name)
	return r, err
}

// =============================================================================
// TOURS
// =============================================================================

func (q *queries) GetTour(ctx context.Context, id string) (tours.Tour, error) {
	b := q.sb.Select(tourColumns...).From("tours").Where(squirrel.Eq{"id": id})
	return get(ctx, q, "GetTour", b, scanTour, tours.ErrTourNotFound)
}

func (q *queries) LockTour(ctx context.Context, id string) (tours.Tour, error) {
	b := q.sb.Select(tourColumns...).From("tours").Where(squirrel.Eq{"id": id})
	if suffix := q.dialect.lockSuffix(); suffix != "" {
		b = b.Suffix(suffix)
	}
	return get(ctx, q, "LockTour", b, scanTour, tours.ErrTourNotFound)
}

func (q *queries) ListTours(ctx context.Context, f tours.TourFilter) ([]tours.Tour, error) {
	b := q.sb.Select(tourColumns...).From("tours").OrderBy("departure_at", "id")
	if f.From != nil {
		b = b.Where(squirrel.GtOrEq{"departure_at": formatTime(*f.From)})
	}
	if f.To != nil {
		b = b.Where(squirrel.LtOrEq{"departure_at": formatTime(*f.To)})
	}
	if f.Status != nil {
		b = b.Where(squirrel.Eq{"status": string(*f.Status)})
	}
	return list(ctx, q, "ListTours", b, scanTour)
}

func (q *queries) ListUnassignedTours(ctx context.Context, from time.Time) ([]tours.Tour, error) {
	b := q.sb.Select(tourColumns...).From("tours").
		Where(squirrel.Eq{"status": string(tours.TourUnassigned)}).
		Where(squirrel.GtOrEq{"departure_at": formatTime(from)}).
		OrderBy("departure_at", "id")
	return list(ctx, q, "ListUnassignedTours", b, scanTour)
}

func (q *queries) ListCommitments(ctx context.Context, endingFrom time.Time) ([]engine.Assignment, error) {
	b := q.sb.Select(tourColumns...).From("tours").
		Where(squirrel.Eq{"status": string(tours.TourScheduled)}).
		Where(squirrel.NotEq{"bus_id": ""}).
		Where(squirrel.GtOrEq{"return_at": formatTime(endingFrom)}).
		OrderBy("departure_at", "id")
	scheduled, err := list(ctx, q, "ListCommitments", b, scanTour)
	if err != nil {
		return nil, err
	}
	var out []engine.Assignment
	for _, t := range scheduled {
		out = append(out, t.Commitments()...)
	}
	return out, nil
}

func (q *queries) SaveTour(ctx context.Context, t tours.Tour) error {
	cols := append(append([]string{}, tourColumns...), "return_at")
	return q.upsert(ctx, "SaveTour", "tours", cols,
		t.ID, t.RouteID, t.Name, formatTime(t.DepartureAt), int64(t.Duration/time.Second),
		t.GuideID, t.DriverID, t.BusID, string(t.Status), formatTime(t.CreatedAt),
		formatTime(t.DepartureAt.Add(t.Duration)))
}

func scanTour(row scanner) (tours.Tour, error) {
	var t tours.Tour
	var departure, created, status string
	var seconds int64
	if err := row.Scan(&t.ID, &t.RouteID, &t.Name, &departure, &seconds,
		&t.GuideID, &t.DriverID, &t.BusID, &status, &created); err != nil {
		return tours.Tour{}, err
	}
	var err error
	if t.DepartureAt, err = parseTime(departure); err != nil {
		return tours.Tour{}, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return tours.Tour{}, err
	}
	t.Duration = time.Duration(seconds) * time.Second
	t.Status = tours.TourStatus(status)
	return t, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (q *queries) GetBooking(ctx context.Context, id string) (tours.Booking, error) {
	b := q.sb.Select(bookingColumns...).From("bookings").Where(squirrel.Eq{"id": id})
	return get(ctx, q, "GetBooking", b, scanBooking, tours.ErrBookingNotFound)
}

func (q *queries) ListBookingsByTour(ctx context.Context, tourID string) ([]tours.Booking, error) {
	b := q.sb.Select(bookingColumns...).From("bookings").
		Where(squirrel.Eq{"tour_id": tourID}).
		OrderBy("created_at", "id")
	return list(ctx, q, "ListBookingsByTour", b, scanBooking)
}

func (q *queries) SumBookedSeats(ctx context.Context, tourID string) (int, error) {
	holding := make([]string, len(tours.SeatHoldingStatuses))
	for i, s := range tours.SeatHoldingStatuses {
		holding[i] = string(s)
	}
	query, args, err := q.sb.Select("COALESCE(SUM(quantity), 0)").From("bookings").
		Where(squirrel.Eq{"tour_id": tourID, "status": holding}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: SumBookedSeats - build select: %v", ErrBuildQuery, err)
	}
	var n int64
	if err := q.exec.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, q.dialect.wrap("SumBookedSeats - scan", ErrScanRow, err)
	}
	return int(n), nil
}

func (q *queries) SaveBooking(ctx context.Context, b tours.Booking) error {
	tickets, err := encodeLines(b.Tickets)
	if err != nil {
		return err
	}
	products, err := encodeLines(b.Products)
	if err != nil {
		return err
	}
	return q.upsert(ctx, "SaveBooking", "bookings", bookingColumns,
		b.ID, b.TourID, b.CustomerID, tickets, products, b.Quantity, b.BoardingIndex, string(b.Status),
		b.TotalPrice.Int64(), b.PaidAmount.Int64(), b.PaymentRef, b.RefundedAmount.Int64(),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
}

func scanBooking(row scanner) (tours.Booking, error) {
	var b tours.Booking
	var tickets, products, status, created, updated string
	var total, paid, refunded int64
	if err := row.Scan(&b.ID, &b.TourID, &b.CustomerID, &tickets, &products, &b.Quantity, &b.BoardingIndex,
		&status, &total, &paid, &b.PaymentRef, &refunded, &created, &updated); err != nil {
		return tours.Booking{}, err
	}
	var err error
	if b.Tickets, err = decodeLines(tickets); err != nil {
		return tours.Booking{}, err
	}
	if b.Products, err = decodeLines(products); err != nil {
		return tours.Booking{}, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return tours.Booking{}, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return tours.Booking{}, err
	}
	b.Status = tours.BookingStatus(status)
	b.TotalPrice = engine.Money(total)
	b.PaidAmount = engine.Money(paid)
	b.RefundedAmount = engine.Money(refunded)
	return b, nil
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func get[T any](ctx context.Context, q *queries, op string, b squirrel.SelectBuilder, scan func(scanner) (T, error), notFound error) (T, error) {
	var zero T
	query, args, err := b.ToSql()
	if err != nil {
		return zero, fmt.Errorf("%w: %s - build select: %v", ErrBuildQuery, op, err)
	}
	v, err := scan(q.exec.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, notFound
	}
	if err != nil {
		return zero, q.dialect.wrap(op+" - scan", ErrScanRow, err)
	}
	return v, nil
}

func list[T any](ctx context.Context, q *queries, op string, b squirrel.SelectBuilder, scan func(scanner) (T, error)) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %s - build select: %v", ErrBuildQuery, op, err)
	}
	rows, err := q.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, q.dialect.wrap(op+" - query", ErrExecQuery, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrScanRow, op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, q.dialect.wrap(op+" - rows", ErrExecQuery, err)
	}
	return out, nil
}

// upsert inserts a row keyed by its first column, updating every other
// column on conflict. Both dialects accept ON CONFLICT ... excluded.
func (q *queries) upsert(ctx context.Context, op, table string, cols []string, vals ...any) error {
	set := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		set = append(set, c+" = excluded."+c)
	}
	query, args, err := q.sb.Insert(table).
		Columns(cols...).
		Values(vals...).
		Suffix(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", cols[0], strings.Join(set, ", "))).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %s - build upsert: %v", ErrBuildQuery, op, err)
	}
	if _, err := q.exec.ExecContext(ctx, query, args...); err != nil {
		return q.dialect.wrap(op+" - execute upsert", ErrExecQuery, err)
	}
	return nil
}
