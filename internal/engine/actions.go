package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/apperrors"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/storage"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/validator"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

// logActionRequest carries the validated inputs of one logged action.
type logActionRequest struct {
	LeadID string `json:"lead_id" validate:"required"`
	Action string `json:"action" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
	Source string `json:"source" validate:"required,oneof=api agent sync scheduler"`
}

// LogAction records an outreach action on a lead: it flips the flag named by
// the action (or stamps replied_at_utc for mark_replied) and appends an
// action_logged audit entry in the same transaction. Transition preconditions
// read these flags; the transition engine itself never sets them.
func (e *Engine) LogAction(ctx context.Context, leadID, action, actor string, source model.AuditSource) (*model.Lead, error) {
	req := logActionRequest{LeadID: leadID, Action: action, Actor: actor, Source: string(source)}
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	col, ok := model.ActionFlagMap[action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", apperrors.ErrBadRequest, action)
	}

	now := utils.Now()
	var updated *model.Lead

	txErr := e.leads.Transact(ctx, func(tx storage.LeadTx) error {
		lead, err := tx.FindByIDForUpdate(ctx, leadID)
		if err != nil {
			return err
		}

		fields := model.FieldSet{}
		before := model.FieldSet{col: flagValue(lead, col)}
		if col == model.ColRepliedAt {
			fields[col] = now
		} else {
			fields[col] = true
		}

		if err := tx.UpdateFields(ctx, lead.ID, fields); err != nil {
			return err
		}

		entry := &model.AuditLogEntry{
			ID:             uuid.NewString(),
			LeadID:         lead.ID,
			OrganizationID: lead.OrganizationID,
			Actor:          actor,
			Action:         model.AuditActionLogged,
			Before:         datatypes.JSON(utils.MustMarshalJSON(before)),
			After:          datatypes.JSON(utils.MustMarshalJSON(fields)),
			Source:         string(source),
		}
		if err := tx.AppendAuditLog(ctx, entry); err != nil {
			return err
		}

		lead.Apply(fields)
		updated = lead
		return nil
	})
	if txErr != nil {
		logger.FromContext(ctx).Error("Failed to log action",
			zap.String("lead_id", leadID),
			zap.String("action", action),
			zap.Error(txErr),
		)
		return nil, txErr
	}

	logger.FromContext(ctx).Info("Action logged",
		zap.String("lead_id", leadID),
		zap.String("action", action),
		zap.String("actor", actor),
	)
	return updated, nil
}

// flagValue reads the current value of an action-flag column.
func flagValue(l *model.Lead, col string) interface{} {
	switch col {
	case model.ColEmailSent1:
		return l.EmailSent1
	case model.ColDmLiSent1:
		return l.DmLiSent1
	case model.ColDmFbSent1:
		return l.DmFbSent1
	case model.ColDmIgSent1:
		return l.DmIgSent1
	case model.ColCallDone:
		return l.CallDone
	case model.ColEmailSent2:
		return l.EmailSent2
	case model.ColDmSent2:
		return l.DmSent2
	case model.ColWaVoiceSent:
		return l.WaVoiceSent
	case model.ColRepliedAt:
		if l.RepliedAt == nil {
			return nil
		}
		return *l.RepliedAt
	default:
		return nil
	}
}
