package storage

import (
	"context"
	"time"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
)

// LeadRepoAdapter adapts the PostgresRepo to the LeadRepo interface
type LeadRepoAdapter struct {
	postgres *PostgresRepo
}

// NewLeadRepoAdapter creates a new lead repository adapter
func NewLeadRepoAdapter(postgres *PostgresRepo) LeadRepo {
	return &LeadRepoAdapter{postgres: postgres}
}

// Save creates a lead
func (a *LeadRepoAdapter) Save(ctx context.Context, lead *model.Lead) error {
	return a.postgres.SaveLead(ctx, lead)
}

// FindByID finds a lead by ID
func (a *LeadRepoAdapter) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	return a.postgres.FindLeadByID(ctx, id)
}

// FindDue finds leads whose wait timer has elapsed
func (a *LeadRepoAdapter) FindDue(ctx context.Context, organizationID string, now time.Time) ([]model.Lead, error) {
	return a.postgres.FindDueLeads(ctx, organizationID, now)
}

// Transact runs fn inside one database transaction
func (a *LeadRepoAdapter) Transact(ctx context.Context, fn func(tx LeadTx) error) error {
	return a.postgres.LeadTransact(ctx, fn)
}

func (a *LeadRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// AuditLogRepoAdapter adapts the PostgresRepo to the AuditLogRepo interface
type AuditLogRepoAdapter struct {
	postgres *PostgresRepo
}

// NewAuditLogRepoAdapter creates a new audit log repository adapter
func NewAuditLogRepoAdapter(postgres *PostgresRepo) AuditLogRepo {
	return &AuditLogRepoAdapter{postgres: postgres}
}

// Append writes one audit entry
func (a *AuditLogRepoAdapter) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	return a.postgres.AppendAuditLog(ctx, entry)
}

// FindByLeadID returns a lead's audit trail, oldest first
func (a *AuditLogRepoAdapter) FindByLeadID(ctx context.Context, leadID string) ([]model.AuditLogEntry, error) {
	return a.postgres.FindAuditLogsByLeadID(ctx, leadID)
}

// CountByLeadID counts a lead's audit entries
func (a *AuditLogRepoAdapter) CountByLeadID(ctx context.Context, leadID string) (int64, error) {
	return a.postgres.CountAuditLogsByLeadID(ctx, leadID)
}

func (a *AuditLogRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}
