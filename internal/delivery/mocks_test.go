package delivery_test

import (
	"context"
	"sync"
	"time"

	"basegraph.co/distributor/internal/delivery"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

type mockAuditStore struct {
	mu       sync.Mutex
	records  []model.AuditRecord
	appendFn func(ctx context.Context, rec *model.AuditRecord) error
}

func (m *mockAuditStore) Append(ctx context.Context, rec *model.AuditRecord) error {
	m.mu.Lock()
	m.records = append(m.records, *rec)
	m.mu.Unlock()
	if m.appendFn != nil {
		return m.appendFn(ctx, rec)
	}
	return nil
}

func (m *mockAuditStore) LatestStatus(ctx context.Context, uabsEventID, consumerID int64) (string, bool, error) {
	return "", false, nil
}

func (m *mockAuditStore) IsEventSuccessful(ctx context.Context, uabsEventID, consumerID int64) (bool, error) {
	return false, nil
}

func (m *mockAuditStore) FailedEventIDsForDate(ctx context.Context, date time.Time, consumerID int64) ([]int64, error) {
	return nil, nil
}

func (m *mockAuditStore) all() []model.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditRecord(nil), m.records...)
}

// memoryMappingStore behaves like the insert-if-absent table.
type memoryMappingStore struct {
	mu        sync.Mutex
	mappings  map[int64]string
	saveCalls int
	saveErr   error
	lookupErr error
}

func newMemoryMappingStore() *memoryMappingStore {
	return &memoryMappingStore{mappings: map[int64]string{}}
}

func (m *memoryMappingStore) GetBySignalID(ctx context.Context, signalID int64) (*model.InitialMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	hubID, ok := m.mappings[signalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &model.InitialMapping{SignalID: signalID, HubEventID: hubID}, nil
}

func (m *memoryMappingStore) SaveIfAbsent(ctx context.Context, signalID int64, hubEventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if _, ok := m.mappings[signalID]; ok {
		return false, nil
	}
	m.mappings[signalID] = hubEventID
	return true, nil
}

type mockBalanceStore struct {
	getFn func(ctx context.Context, agreementID int64) (*model.AccountBalance, error)
}

func (m *mockBalanceStore) GetByAgreementID(ctx context.Context, agreementID int64) (*model.AccountBalance, error) {
	if m.getFn != nil {
		return m.getFn(ctx, agreementID)
	}
	return nil, store.ErrNotFound
}

type mockSender struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, event model.SignalEvent) delivery.Outcome
	sent   []int64
}

func (m *mockSender) Send(ctx context.Context, event model.SignalEvent) delivery.Outcome {
	m.mu.Lock()
	m.sent = append(m.sent, event.UabsEventID)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, event)
	}
	return delivery.OutcomePass
}
