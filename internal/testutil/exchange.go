// Package testutil provides shared fakes and fixtures for engine tests.
package testutil

import (
	"context"
	"sync"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// MockExchange is a scripted Exchange implementation. Outcomes are
// queued per token; placements drain the queue in order. An empty queue
// yields a matched fill at the order's limit price.
type MockExchange struct {
	mu        sync.Mutex
	scripted  map[string][]scriptedOutcome
	placed    []types.Order
	cancelled []string
	books     map[string]*types.TokenBook

	// PlaceErr, when set, is returned from every PlaceOrder call as a
	// transport-level error.
	PlaceErr error
	// CancelErr, when set, is returned from CancelOrder.
	CancelErr error
}

type scriptedOutcome struct {
	outcome types.OrderOutcome
	err     error
}

// NewMockExchange creates an empty mock.
func NewMockExchange() *MockExchange {
	return &MockExchange{
		scripted: make(map[string][]scriptedOutcome),
		books:    make(map[string]*types.TokenBook),
	}
}

// Script queues an outcome for the next placement on tokenID.
func (m *MockExchange) Script(tokenID string, outcome types.OrderOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[tokenID] = append(m.scripted[tokenID], scriptedOutcome{outcome: outcome})
}

// ScriptError queues a transport error for the next placement on tokenID.
func (m *MockExchange) ScriptError(tokenID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[tokenID] = append(m.scripted[tokenID], scriptedOutcome{err: err})
}

// SetBook installs a REST book snapshot for GetBook.
func (m *MockExchange) SetBook(tokenID string, book *types.TokenBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[tokenID] = book
}

// PlaceOrder pops the scripted outcome for the order's token.
func (m *MockExchange) PlaceOrder(_ context.Context, order types.Order) (types.OrderOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.placed = append(m.placed, order)

	if m.PlaceErr != nil {
		return types.OrderOutcome{}, m.PlaceErr
	}

	queue := m.scripted[order.TokenID]
	if len(queue) == 0 {
		return types.Matched("mock-"+order.TokenID, order.Size, order.Notional()), nil
	}

	next := queue[0]
	m.scripted[order.TokenID] = queue[1:]
	if next.err != nil {
		return types.OrderOutcome{}, next.err
	}
	return next.outcome, nil
}

// CancelOrder records the cancellation.
func (m *MockExchange) CancelOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

// GetOrder reports any known order as matched.
func (m *MockExchange) GetOrder(_ context.Context, orderID string) (*types.OrderQueryResponse, error) {
	return &types.OrderQueryResponse{ID: orderID, Status: "matched"}, nil
}

// GetBook returns the installed snapshot or ErrBookUnavailable.
func (m *MockExchange) GetBook(_ context.Context, tokenID string) (*types.TokenBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok := m.books[tokenID]; ok {
		return book, nil
	}
	return nil, types.ErrBookUnavailable
}

// Placed returns all orders placed so far.
func (m *MockExchange) Placed() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Order, len(m.placed))
	copy(out, m.placed)
	return out
}

// PlacedFor returns the orders placed on one token.
func (m *MockExchange) PlacedFor(tokenID string) []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Order
	for _, o := range m.placed {
		if o.TokenID == tokenID {
			out = append(out, o)
		}
	}
	return out
}

// Cancelled returns the IDs passed to CancelOrder.
func (m *MockExchange) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cancelled))
	copy(out, m.cancelled)
	return out
}
