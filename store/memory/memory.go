// Package memory provides an in-memory tours.TxStore for tests and local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

var _ tours.TxStore = (*Memory)(nil)

func New() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialised by the write lock.
func (m *Memory) WithTx(_ context.Context, fn func(tours.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Memory) GetEmployee(ctx context.Context, id string) (tours.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetEmployee(ctx, id)
}

func (m *Memory) ListEmployees(ctx context.Context) ([]tours.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListEmployees(ctx)
}

func (m *Memory) ListCandidates(ctx context.Context, role engine.Role) ([]tours.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCandidates(ctx, role)
}

func (m *Memory) SaveEmployee(ctx context.Context, e tours.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveEmployee(ctx, e)
}

func (m *Memory) SetRemainingQuota(ctx context.Context, id string, quota int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetRemainingQuota(ctx, id, quota)
}

func (m *Memory) GetBus(ctx context.Context, id string) (tours.Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetBus(ctx, id)
}

func (m *Memory) ListBuses(ctx context.Context) ([]tours.Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListBuses(ctx)
}

func (m *Memory) ListActiveBuses(ctx context.Context) ([]tours.Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListActiveBuses(ctx)
}

func (m *Memory) SaveBus(ctx context.Context, b tours.Bus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveBus(ctx, b)
}

func (m *Memory) GetRoute(ctx context.Context, id string) (tours.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetRoute(ctx, id)
}

func (m *Memory) ListRoutes(ctx context.Context) ([]tours.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListRoutes(ctx)
}

func (m *Memory) SaveRoute(ctx context.Context, r tours.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveRoute(ctx, r)
}

func (m *Memory) GetTour(ctx context.Context, id string) (tours.Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetTour(ctx, id)
}

func (m *Memory) LockTour(ctx context.Context, id string) (tours.Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LockTour(ctx, id)
}

func (m *Memory) ListTours(ctx context.Context, f tours.TourFilter) ([]tours.Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListTours(ctx, f)
}

func (m *Memory) ListUnassignedTours(ctx context.Context, from time.Time) ([]tours.Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListUnassignedTours(ctx, from)
}

func (m *Memory) ListCommitments(ctx context.Context, endingFrom time.Time) ([]engine.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCommitments(ctx, endingFrom)
}

func (m *Memory) SaveTour(ctx context.Context, t tours.Tour) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveTour(ctx, t)
}

func (m *Memory) GetBooking(ctx context.Context, id string) (tours.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetBooking(ctx, id)
}

func (m *Memory) ListBookingsByTour(ctx context.Context, tourID string) ([]tours.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListBookingsByTour(ctx, tourID)
}

func (m *Memory) SumBookedSeats(ctx context.Context, tourID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.SumBookedSeats(ctx, tourID)
}

func (m *Memory) SaveBooking(ctx context.Context, b tours.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveBooking(ctx, b)
}
