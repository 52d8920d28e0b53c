package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/apperrors"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/observer"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/validator"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

// AppendAuditLog writes one audit entry outside any caller-held transaction.
// The transition engine writes its entries through LeadTx instead so they
// commit atomically with the lead update.
func (r *PostgresRepo) AppendAuditLog(ctx context.Context, entry *model.AuditLogEntry) error {
	if err := validator.Validate(entry); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "AppendAuditLog", operation)
	observer.ObserveDbOperationDuration("append", "audit_log", metricsTenant(ctx, entry.OrganizationID), time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to append audit log", zap.String("lead_id", entry.LeadID), zap.Error(err))
		return err
	}
	return nil
}

// FindAuditLogsByLeadID returns a lead's audit trail, oldest first.
func (r *PostgresRepo) FindAuditLogsByLeadID(ctx context.Context, leadID string) ([]model.AuditLogEntry, error) {
	var entries []model.AuditLogEntry

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("lead_id = ?", leadID).
			Order("created_at ASC").
			Find(&entries).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "FindAuditLogsByLeadID", operation)
	observer.ObserveDbOperationDuration("find", "audit_log", metricsTenant(ctx, ""), time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to find audit logs", zap.String("lead_id", leadID), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to find audit logs: %w", apperrors.ErrDatabase, err)
	}
	return entries, nil
}

// CountAuditLogsByLeadID counts a lead's audit entries.
func (r *PostgresRepo) CountAuditLogsByLeadID(ctx context.Context, leadID string) (int64, error) {
	var count int64

	operation := func() error {
		return r.db.WithContext(ctx).
			Model(&model.AuditLogEntry{}).
			Where("lead_id = ?", leadID).
			Count(&count).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "CountAuditLogsByLeadID", operation)
	observer.ObserveDbOperationDuration("count", "audit_log", metricsTenant(ctx, ""), time.Since(startTime), err)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count audit logs: %w", apperrors.ErrDatabase, err)
	}
	return count, nil
}
