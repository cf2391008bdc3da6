package clients

import (
	"context"
	"sync"
)

// MockInventoryClient records deductions. Set Err to simulate a failing service.
type MockInventoryClient struct {
	mu         sync.Mutex
	Deductions []*DeductionRequest
	Err        error
}

func NewMockInventoryClient() *MockInventoryClient {
	return &MockInventoryClient{}
}

func (m *MockInventoryClient) DeductInventory(ctx context.Context, req *DeductionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Deductions = append(m.Deductions, req)
	return nil
}

// MockNotificationClient records notifications. Set Err to simulate a failing service.
type MockNotificationClient struct {
	mu            sync.Mutex
	Notifications []*Notification
	Err           error
}

func NewMockNotificationClient() *MockNotificationClient {
	return &MockNotificationClient{}
}

func (m *MockNotificationClient) SendNotification(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Notifications = append(m.Notifications, n)
	return nil
}
