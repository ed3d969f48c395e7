package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/tour-engine/tours"
)

// Memory records refunds instead of moving money. Requests sharing an
// idempotency key return the first receipt, as Stripe does.
type Memory struct {
	mu      sync.Mutex
	refunds []tours.RefundRequest
	byKey   map[string]tours.Receipt
	failing error
}

var _ tours.Gateway = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{byKey: make(map[string]tours.Receipt)}
}

// FailWith makes every following Refund return err. nil restores success.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = err
}

func (m *Memory) Refund(_ context.Context, req tours.RefundRequest) (tours.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing != nil {
		return tours.Receipt{}, m.failing
	}
	if r, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}

	m.refunds = append(m.refunds, req)
	r := tours.Receipt{ID: fmt.Sprintf("re_mem_%d", len(m.refunds)), Amount: req.Amount, Status: "succeeded"}
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = r
	}
	return r, nil
}

// Refunds returns every distinct refund sent so far.
func (m *Memory) Refunds() []tours.RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tours.RefundRequest(nil), m.refunds...)
}
