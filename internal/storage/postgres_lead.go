package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/apperrors"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/observer"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/tenant"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/validator"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

// metricsTenant resolves the tenant label for DB metrics, falling back to the
// entity's own organization when the context carries none.
func metricsTenant(ctx context.Context, fallback string) string {
	if organizationID, err := tenant.FromContext(ctx); err == nil {
		return organizationID
	}
	return fallback
}

// SaveLead creates a new lead record.
func (r *PostgresRepo) SaveLead(ctx context.Context, lead *model.Lead) error {
	if err := validator.Validate(lead); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "SaveLead", operation)
	observer.ObserveDbOperationDuration("save", "lead", metricsTenant(ctx, lead.OrganizationID), time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save lead after retries", zap.Error(err))
		return err
	}
	return nil
}

// FindLeadByID fetches a single lead by its primary key.
func (r *PostgresRepo) FindLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	var lead model.Lead

	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "FindLeadByID", operation)
	observer.ObserveDbOperationDuration("find", "lead", metricsTenant(ctx, lead.OrganizationID), time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lead %s: %w", apperrors.ErrNotFound, id, err)
		}
		logger.FromContext(ctx).Error("Failed to find lead", zap.String("lead_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to find lead: %w", apperrors.ErrDatabase, err)
	}
	return &lead, nil
}

// FindDueLeads returns leads in a waiting status whose next_action_due_utc is
// at or before now, ordered by due time ascending. An empty organizationID
// scans all tenants.
func (r *PostgresRepo) FindDueLeads(ctx context.Context, organizationID string, now time.Time) ([]model.Lead, error) {
	var leads []model.Lead

	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("status IN ?", model.WaitingStatuses).
			Where("next_action_due_utc IS NOT NULL AND next_action_due_utc <= ?", now).
			Order("next_action_due_utc ASC")
		if organizationID != "" {
			query = query.Where("organization_id = ?", organizationID)
		}
		return query.Find(&leads).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "FindDueLeads", operation)
	observer.ObserveDbOperationDuration("find_due", "lead", metricsTenant(ctx, organizationID), time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to query due leads", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to query due leads: %w", apperrors.ErrDatabase, err)
	}
	return leads, nil
}

// LeadTransact runs fn inside one database transaction. It runs a single
// attempt: transition denials must not be retried, and the row lock taken by
// FindByIDForUpdate serializes concurrent advances without optimistic replay.
func (r *PostgresRepo) LeadTransact(ctx context.Context, fn func(tx LeadTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&leadTx{db: tx})
	})
}

// leadTx implements LeadTx on an open GORM transaction.
type leadTx struct {
	db *gorm.DB
}

var _ LeadTx = (*leadTx)(nil)

// FindByIDForUpdate fetches a lead and holds a SELECT ... FOR UPDATE lock on
// its row until the transaction ends.
func (t *leadTx) FindByIDForUpdate(ctx context.Context, id string) (*model.Lead, error) {
	var lead model.Lead
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lead %s: %w", apperrors.ErrNotFound, id, err)
		}
		return nil, fmt.Errorf("%w: failed to lock lead row: %w", apperrors.ErrDatabase, err)
	}
	return &lead, nil
}

// UpdateFields applies a partial update to the lead row. Nil values write
// NULL; absent columns are left unchanged.
func (t *leadTx) UpdateFields(ctx context.Context, id string, fields model.FieldSet) error {
	result := t.db.WithContext(ctx).
		Model(&model.Lead{}).
		Where("id = ?", id).
		Updates(map[string]interface{}(fields))
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, id)
	}
	return nil
}

// AppendAuditLog writes one audit entry inside the transaction.
func (t *leadTx) AppendAuditLog(ctx context.Context, entry *model.AuditLogEntry) error {
	if err := validator.Validate(entry); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}
	if err := t.db.WithContext(ctx).Create(entry).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}
