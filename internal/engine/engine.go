package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/apperrors"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/events"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/observer"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/storage"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/validator"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

// maxChainDepth bounds the auto-chain loop inside one advance call. No
// current chain needs more than three hops; a longer chain is silently
// truncated rather than looped.
const maxChainDepth = 3

// Denial kinds, used as metric labels.
const (
	denialNotAllowed   = "not_allowed"
	denialNoRule       = "no_rule"
	denialPrecondition = "precondition"
	denialNotFound     = "not_found"
)

// Decision is the outcome of a transition check.
type Decision struct {
	Allowed bool
	Reason  string

	kind string
}

// TransitionStep records one applied hop.
type TransitionStep struct {
	From model.LeadStatus `json:"from"`
	To   model.LeadStatus `json:"to"`
}

// AdvanceResult is the outcome of an advance request. Denials and missing
// leads come back as Success=false with Error set; storage failures surface
// as Go errors instead.
type AdvanceResult struct {
	Success     bool             `json:"success"`
	Lead        *model.Lead      `json:"lead,omitempty"`
	Transitions []TransitionStep `json:"transitions,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// PossibleTransition reports whether one adjacent target is currently
// reachable.
type PossibleTransition struct {
	To      model.LeadStatus `json:"to"`
	Allowed bool             `json:"allowed"`
	Reason  string           `json:"reason,omitempty"`
}

// NextSteps lists every adjacent target of a lead's current status with its
// current allow/deny state.
type NextSteps struct {
	CurrentStatus       model.LeadStatus     `json:"current_status"`
	PossibleTransitions []PossibleTransition `json:"possible_transitions"`
}

// Engine applies status transitions transactionally, evaluates auto-chains,
// and writes one audit entry per applied hop.
type Engine struct {
	leads     storage.LeadRepo
	audits    storage.AuditLogRepo
	publisher events.Publisher
}

// NewEngine creates a transition engine. Publisher may be a NoopPublisher
// when event publishing is disabled.
func NewEngine(leads storage.LeadRepo, audits storage.AuditLogRepo, publisher events.Publisher) *Engine {
	return &Engine{leads: leads, audits: audits, publisher: publisher}
}

// denialError carries a structured denial out of the transaction callback so
// the rollback path can distinguish it from storage failures. Error() returns
// the bare reason, verbatim.
type denialError struct {
	reason string
	kind   string
	from   model.LeadStatus
	to     model.LeadStatus
}

func (d *denialError) Error() string { return d.reason }

func (d *denialError) Unwrap() error {
	if d.kind == denialPrecondition {
		return apperrors.ErrTransitionDenied
	}
	return apperrors.ErrTransitionNotAllowed
}

// canTransitionAt evaluates adjacency, rule existence, and the precondition
// against lead at the given time. Pure; mutates nothing.
func canTransitionAt(lead *model.Lead, target model.LeadStatus, now time.Time) Decision {
	onEdge := false
	for _, t := range adjacency[lead.Status] {
		if t == target {
			onEdge = true
			break
		}
	}
	if !onEdge {
		return Decision{
			Reason: fmt.Sprintf("Transition %s → %s is not allowed", lead.Status, target),
			kind:   denialNotAllowed,
		}
	}

	rule, ok := rules[ruleKey(lead.Status, target)]
	if !ok {
		// Configuration defect: an adjacent pair without a rule fails closed.
		return Decision{
			Reason: fmt.Sprintf("No rule defined for %s→%s", lead.Status, target),
			kind:   denialNoRule,
		}
	}

	if rule.Precondition != nil {
		if allowed, reason := rule.Precondition(lead, now); !allowed {
			return Decision{Reason: reason, kind: denialPrecondition}
		}
	}
	return Decision{Allowed: true}
}

// CanTransition reports whether lead may move to target right now.
func (e *Engine) CanTransition(lead *model.Lead, target model.LeadStatus) Decision {
	return canTransitionAt(lead, target, utils.Now())
}

// GetNextSteps evaluates every adjacent target of the lead's current status
// without mutating anything.
func (e *Engine) GetNextSteps(lead *model.Lead) NextSteps {
	now := utils.Now()
	targets := adjacency[lead.Status]
	steps := NextSteps{
		CurrentStatus:       lead.Status,
		PossibleTransitions: make([]PossibleTransition, 0, len(targets)),
	}
	for _, target := range targets {
		dec := canTransitionAt(lead, target, now)
		steps.PossibleTransitions = append(steps.PossibleTransitions, PossibleTransition{
			To:      target,
			Allowed: dec.Allowed,
			Reason:  dec.Reason,
		})
	}
	return steps
}

// GetDueLeads returns leads in a waiting status whose timer has elapsed,
// ordered by due time ascending. An empty organizationID scans all tenants.
func (e *Engine) GetDueLeads(ctx context.Context, organizationID string) ([]model.Lead, error) {
	return e.leads.FindDue(ctx, organizationID, utils.Now())
}

// GetAuditTrail returns a lead's audit entries, oldest first.
func (e *Engine) GetAuditTrail(ctx context.Context, leadID string) ([]model.AuditLogEntry, error) {
	return e.audits.FindByLeadID(ctx, leadID)
}

// advanceRequest carries the validated inputs of one advance call.
type advanceRequest struct {
	LeadID string `json:"lead_id" validate:"required"`
	Target string `json:"target_status" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
	Source string `json:"source" validate:"required,oneof=api agent sync scheduler"`
}

// AdvanceLead moves a lead to target, follows auto-chains up to maxChainDepth
// hops, and writes one audit entry per applied hop, all inside one database
// transaction holding a row lock on the lead. Denials and missing leads
// return Success=false with no changes made; only storage failures return a
// non-nil error.
func (e *Engine) AdvanceLead(ctx context.Context, leadID string, target model.LeadStatus, actor string, source model.AuditSource) (*AdvanceResult, error) {
	req := advanceRequest{LeadID: leadID, Target: string(target), Actor: actor, Source: string(source)}
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	log := logger.FromContext(ctx).With(
		zap.String("lead_id", leadID),
		zap.String("target_status", target.String()),
		zap.String("source", string(source)),
	)
	now := utils.Now()
	startTime := now

	var finalLead *model.Lead
	var applied []TransitionStep

	txErr := e.leads.Transact(ctx, func(tx storage.LeadTx) error {
		lead, err := tx.FindByIDForUpdate(ctx, leadID)
		if err != nil {
			return err
		}

		// The check runs against the locked row, so a racing advance that
		// committed first is seen here and denied on the stale edge.
		if dec := canTransitionAt(lead, target, now); !dec.Allowed {
			return &denialError{reason: dec.Reason, kind: dec.kind, from: lead.Status, to: target}
		}

		next := target
		for hop := 0; hop < maxChainDepth; hop++ {
			rule := rules[ruleKey(lead.Status, next)]

			fields := model.FieldSet{}
			if rule.Effects != nil {
				for col, val := range rule.Effects(lead, now) {
					fields[col] = val
				}
			}
			from := lead.Status
			fields[model.ColStatus] = next
			fields[model.ColLastActionAt] = now

			if err := tx.UpdateFields(ctx, lead.ID, fields); err != nil {
				return err
			}

			entry := &model.AuditLogEntry{
				ID:             uuid.NewString(),
				LeadID:         lead.ID,
				OrganizationID: lead.OrganizationID,
				Actor:          actor,
				Action:         model.AuditActionStatusChange,
				Before:         datatypes.JSON(utils.MustMarshalJSON(model.FieldSet{model.ColStatus: from})),
				After:          datatypes.JSON(utils.MustMarshalJSON(fields)),
				Source:         string(source),
			}
			if err := tx.AppendAuditLog(ctx, entry); err != nil {
				return err
			}

			lead.Apply(fields)
			applied = append(applied, TransitionStep{From: from, To: next})

			resolver, ok := autoChains[lead.Status]
			if !ok {
				break
			}
			chainTarget := resolver(lead)
			if _, ok := rules[ruleKey(lead.Status, chainTarget)]; !ok {
				// Dangling chain target: halt chaining, keep what was applied.
				break
			}
			next = chainTarget
		}

		finalLead = lead
		return nil
	})

	if txErr != nil {
		var denial *denialError
		if errors.As(txErr, &denial) {
			observer.IncTransitionDenied(denial.from.String(), denial.to.String(), "", denial.kind)
			log.Info("Transition denied", zap.String("reason", denial.reason))
			return &AdvanceResult{Success: false, Error: denial.reason}, nil
		}
		if apperrors.IsNotFoundError(txErr) {
			observer.IncTransitionDenied("", target.String(), "", denialNotFound)
			log.Info("Lead not found")
			return &AdvanceResult{Success: false, Error: "Lead not found"}, nil
		}
		log.Error("Advance transaction failed", zap.Error(txErr))
		return nil, txErr
	}

	duration := time.Since(startTime)
	for _, step := range applied {
		observer.IncTransitionApplied(step.From.String(), step.To.String(), finalLead.OrganizationID, string(source))
	}
	observer.ObserveAdvanceDuration(finalLead.OrganizationID, string(source), duration)
	observer.ObserveChainLength(finalLead.OrganizationID, string(source), len(applied))
	log.Info("Lead advanced",
		zap.String("final_status", finalLead.Status.String()),
		zap.Int("transitions", len(applied)),
		zap.Duration("duration", duration),
	)

	if e.publisher != nil {
		event := events.StatusChangedEvent{
			LeadID:         finalLead.ID,
			OrganizationID: finalLead.OrganizationID,
			FinalStatus:    finalLead.Status,
			Transitions:    make([]events.TransitionRecord, 0, len(applied)),
			Actor:          actor,
			Source:         string(source),
			OccurredAt:     now,
		}
		for _, step := range applied {
			event.Transitions = append(event.Transitions, events.TransitionRecord{From: step.From, To: step.To})
		}
		if err := e.publisher.PublishStatusChanged(ctx, event); err != nil {
			// Best effort: the audit rows committed with the lead update are
			// the source of truth.
			log.Warn("Failed to publish status change event", zap.Error(err))
		}
	}

	return &AdvanceResult{Success: true, Lead: finalLead, Transitions: applied}, nil
}
