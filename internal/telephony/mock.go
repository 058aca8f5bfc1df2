package telephony

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway records calls in memory. Used in development and tests.
type MockGateway struct {
	mu      sync.Mutex
	counter int
	calls   map[string]*Call
	// StatusUpdates records every UpdateCallStatus invocation in order.
	StatusUpdates []string
	// CreateErr, when set, is returned from CreateCall.
	CreateErr error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{calls: make(map[string]*Call)}
}

func (m *MockGateway) CreateCall(_ context.Context, params CreateParams) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return Call{}, &GatewayError{Op: "create call", Err: m.CreateErr}
	}
	m.counter++
	call := &Call{
		SID:    fmt.Sprintf("CAmock%04d", m.counter),
		To:     params.To,
		From:   params.From,
		Status: StatusQueued,
	}
	m.calls[call.SID] = call
	return *call, nil
}

func (m *MockGateway) UpdateCallStatus(_ context.Context, callID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callID]
	if !ok {
		return &GatewayError{Op: "update call status", Err: fmt.Errorf("unknown call %s", callID)}
	}
	call.Status = status
	m.StatusUpdates = append(m.StatusUpdates, callID+":"+status)
	return nil
}

func (m *MockGateway) FetchCall(_ context.Context, callID string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callID]
	if !ok {
		return Call{}, &GatewayError{Op: "fetch call", Status: 404, Err: fmt.Errorf("unknown call %s", callID)}
	}
	return *call, nil
}
