package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/storage"
)

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface
type LeadRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *LeadRepoMock) Save(ctx context.Context, lead *model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *LeadRepoMock) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// FindDue mocks the FindDue method
func (m *LeadRepoMock) FindDue(ctx context.Context, organizationID string, now time.Time) ([]model.Lead, error) {
	args := m.Called(ctx, organizationID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

// Transact mocks the Transact method. Pair it with a Run callback invoking fn
// against a LeadTxMock when the transaction body matters to the test.
func (m *LeadRepoMock) Transact(ctx context.Context, fn func(tx storage.LeadTx) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// Close mocks the Close method
func (m *LeadRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- LeadTx Mock ---

// LeadTxMock mocks the LeadTx interface
type LeadTxMock struct {
	mock.Mock
}

// FindByIDForUpdate mocks the FindByIDForUpdate method
func (m *LeadTxMock) FindByIDForUpdate(ctx context.Context, id string) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// UpdateFields mocks the UpdateFields method
func (m *LeadTxMock) UpdateFields(ctx context.Context, id string, fields model.FieldSet) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

// AppendAuditLog mocks the AppendAuditLog method
func (m *LeadTxMock) AppendAuditLog(ctx context.Context, entry *model.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// --- AuditLogRepo Mock ---

// AuditLogRepoMock mocks the AuditLogRepo interface
type AuditLogRepoMock struct {
	mock.Mock
}

// Append mocks the Append method
func (m *AuditLogRepoMock) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// FindByLeadID mocks the FindByLeadID method
func (m *AuditLogRepoMock) FindByLeadID(ctx context.Context, leadID string) ([]model.AuditLogEntry, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditLogEntry), args.Error(1)
}

// CountByLeadID mocks the CountByLeadID method
func (m *AuditLogRepoMock) CountByLeadID(ctx context.Context, leadID string) (int64, error) {
	args := m.Called(ctx, leadID)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks the Close method
func (m *AuditLogRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
