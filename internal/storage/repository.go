package storage

import (
	"context"
	"time"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
)

// LeadRepo defines lead storage operations
type LeadRepo interface {
	Save(ctx context.Context, lead *model.Lead) error
	FindByID(ctx context.Context, id string) (*model.Lead, error)
	// FindDue returns leads in a waiting status whose next_action_due_utc is at
	// or before now, ordered by due time ascending. An empty organizationID
	// scans all tenants.
	FindDue(ctx context.Context, organizationID string, now time.Time) ([]model.Lead, error)
	// Transact runs fn inside one database transaction. Any error from fn
	// rolls back every write made through the LeadTx.
	Transact(ctx context.Context, fn func(tx LeadTx) error) error
	Close(ctx context.Context) error
}

// LeadTx exposes the writes available inside a lead transaction. Row locks
// taken by FindByIDForUpdate are held until the transaction ends.
type LeadTx interface {
	FindByIDForUpdate(ctx context.Context, id string) (*model.Lead, error)
	UpdateFields(ctx context.Context, id string, fields model.FieldSet) error
	AppendAuditLog(ctx context.Context, entry *model.AuditLogEntry) error
}

// AuditLogRepo defines audit log storage operations
type AuditLogRepo interface {
	Append(ctx context.Context, entry *model.AuditLogEntry) error
	FindByLeadID(ctx context.Context, leadID string) ([]model.AuditLogEntry, error)
	CountByLeadID(ctx context.Context, leadID string) (int64, error)
	Close(ctx context.Context) error
}
