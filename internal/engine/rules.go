package engine

import (
	"fmt"
	"time"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

// Precondition gates a transition. It is a pure function of the lead and the
// evaluation time, returning allowed plus a human-readable denial reason.
type Precondition func(lead *model.Lead, now time.Time) (bool, string)

// EffectResolver computes the fields a transition writes beyond the status
// change itself. Fields it does not mention are left unchanged; a nil value
// clears the column.
type EffectResolver func(lead *model.Lead, now time.Time) model.FieldSet

// Rule binds one legal (from, to) pair to its gate and its side effects.
// A nil Precondition is unconditional; a nil Effects writes only the status.
type Rule struct {
	Precondition Precondition
	Effects      EffectResolver
}

// Wait-state thresholds, compared against lastActionUtc in fractional days.
const (
	waitCallDays     = 2.0
	waitFollowUpDays = 1.0
)

// adjacency maps each status to the ordered set of statuses it may legally
// move to. COMPLETED is terminal and has no outgoing edges.
var adjacency = map[model.LeadStatus][]model.LeadStatus{
	model.StatusNew:           {model.StatusContacted1, model.StatusReplied, model.StatusNotInterested},
	model.StatusContacted1:    {model.StatusWaitingD2, model.StatusReplied, model.StatusNotInterested},
	model.StatusWaitingD2:     {model.StatusCallDue, model.StatusReplied, model.StatusNotInterested},
	model.StatusCallDue:       {model.StatusCalled, model.StatusReplied, model.StatusNotInterested},
	model.StatusCalled:        {model.StatusWaitingD1, model.StatusReplied, model.StatusNotInterested},
	model.StatusWaitingD1:     {model.StatusContacted2, model.StatusReplied, model.StatusNotInterested},
	model.StatusContacted2:    {model.StatusWaVoiceDue, model.StatusCompleted, model.StatusReplied, model.StatusNotInterested},
	model.StatusWaVoiceDue:    {model.StatusCompleted, model.StatusReplied, model.StatusNotInterested},
	model.StatusReplied:       {model.StatusQualified, model.StatusNotInterested},
	model.StatusQualified:     {model.StatusCompleted},
	model.StatusNotInterested: {model.StatusCompleted},
	model.StatusCompleted:     {},
}

// ruleKey builds the lookup key for the rule table.
func ruleKey(from, to model.LeadStatus) string {
	return fmt.Sprintf("%s→%s", from, to)
}

// rules is the static transition rule table, keyed by ruleKey. Loaded once at
// process start and read-only thereafter.
var rules = buildRules()

func buildRules() map[string]Rule {
	r := map[string]Rule{
		ruleKey(model.StatusNew, model.StatusContacted1): {
			Precondition: firstTouchRecorded,
		},
		ruleKey(model.StatusContacted1, model.StatusWaitingD2): {
			Effects: scheduleNext(model.NextActionCall, waitCallDays*24*time.Hour),
		},
		ruleKey(model.StatusWaitingD2, model.StatusCallDue): {
			Precondition: waited(waitCallDays),
			Effects:      dueNow(model.NextActionCall),
		},
		ruleKey(model.StatusCallDue, model.StatusCalled): {
			Precondition: flagSet(func(l *model.Lead) bool { return l.CallDone }, "call_done flag is not set"),
		},
		ruleKey(model.StatusCalled, model.StatusWaitingD1): {
			Effects: scheduleNext(model.NextActionSendEmail2, waitFollowUpDays*24*time.Hour),
		},
		ruleKey(model.StatusWaitingD1, model.StatusContacted2): {
			Precondition: all(
				waited(waitFollowUpDays),
				flagSet(func(l *model.Lead) bool { return l.EmailSent2 || l.DmSent2 },
					"no second outreach action recorded (email_sent_2 or dm_sent_2 required)"),
			),
		},
		ruleKey(model.StatusContacted2, model.StatusWaVoiceDue): {
			Precondition: flagSet(func(l *model.Lead) bool { return l.MobileValid }, "mobile number is not valid"),
			Effects:      dueNow(model.NextActionSendWaVoice),
		},
		ruleKey(model.StatusContacted2, model.StatusCompleted): {
			Precondition: flagSet(func(l *model.Lead) bool { return !l.MobileValid }, "mobile number is valid, wa voice step is required"),
			Effects:      finish(model.OutcomePipelineCompleteNoMobile),
		},
		ruleKey(model.StatusWaVoiceDue, model.StatusCompleted): {
			Precondition: flagSet(func(l *model.Lead) bool { return l.WaVoiceSent }, "wa_voice_sent flag is not set"),
			Effects:      finish(model.OutcomePipelineComplete),
		},
		ruleKey(model.StatusReplied, model.StatusQualified): {
			Effects: func(_ *model.Lead, _ time.Time) model.FieldSet {
				return model.FieldSet{
					model.ColQualified:       true,
					model.ColOutcome:         model.OutcomeQualified,
					model.ColNextAction:      nil,
					model.ColNextActionDueAt: nil,
				}
			},
		},
		ruleKey(model.StatusReplied, model.StatusNotInterested): {
			Effects: func(_ *model.Lead, _ time.Time) model.FieldSet {
				return model.FieldSet{
					model.ColQualified:       false,
					model.ColOutcome:         model.OutcomeNotInterested,
					model.ColNextAction:      nil,
					model.ColNextActionDueAt: nil,
				}
			},
		},
		ruleKey(model.StatusQualified, model.StatusCompleted):     {},
		ruleKey(model.StatusNotInterested, model.StatusCompleted): {},
	}

	// Universal interrupt edges. Every pre-terminal pipeline status may jump
	// to REPLIED when a reply was detected, or to NOT_INTERESTED at any time.
	interruptible := []model.LeadStatus{
		model.StatusNew,
		model.StatusContacted1,
		model.StatusWaitingD2,
		model.StatusCallDue,
		model.StatusCalled,
		model.StatusWaitingD1,
		model.StatusContacted2,
		model.StatusWaVoiceDue,
	}
	for _, from := range interruptible {
		r[ruleKey(from, model.StatusReplied)] = Rule{
			Precondition: replyDetected,
			Effects:      dueNow(model.NextActionReviewReply),
		}
		r[ruleKey(from, model.StatusNotInterested)] = Rule{
			Effects: finish(model.OutcomeNotInterested),
		}
	}
	return r
}

// --- precondition constructors ---

func firstTouchRecorded(l *model.Lead, _ time.Time) (bool, string) {
	if l.EmailSent1 || l.DmLiSent1 || l.DmFbSent1 || l.DmIgSent1 {
		return true, ""
	}
	return false, "no first outreach action recorded (email_sent_1 or a dm flag required)"
}

func replyDetected(l *model.Lead, _ time.Time) (bool, string) {
	if l.RepliedAt != nil {
		return true, ""
	}
	return false, "replied_at_utc is not set"
}

// flagSet builds a precondition from a boolean accessor.
func flagSet(get func(*model.Lead) bool, reason string) Precondition {
	return func(l *model.Lead, _ time.Time) (bool, string) {
		if get(l) {
			return true, ""
		}
		return false, reason
	}
}

// waited builds a precondition requiring at least days fractional days since
// the last status change.
func waited(days float64) Precondition {
	return func(l *model.Lead, now time.Time) (bool, string) {
		elapsed := utils.ElapsedDays(l.LastActionAt, now)
		if elapsed >= days {
			return true, ""
		}
		return false, fmt.Sprintf("waited %.2f of %.0f required days since last action", elapsed, days)
	}
}

// all conjoins preconditions, returning the first denial reason.
func all(preconds ...Precondition) Precondition {
	return func(l *model.Lead, now time.Time) (bool, string) {
		for _, p := range preconds {
			if ok, reason := p(l, now); !ok {
				return false, reason
			}
		}
		return true, ""
	}
}

// --- effect constructors ---

// scheduleNext sets the next action with a concrete future due time.
func scheduleNext(action string, wait time.Duration) EffectResolver {
	return func(_ *model.Lead, now time.Time) model.FieldSet {
		return model.FieldSet{
			model.ColNextAction:      action,
			model.ColNextActionDueAt: now.Add(wait),
		}
	}
}

// dueNow sets the next action as due immediately (null due time).
func dueNow(action string) EffectResolver {
	return func(_ *model.Lead, _ time.Time) model.FieldSet {
		return model.FieldSet{
			model.ColNextAction:      action,
			model.ColNextActionDueAt: nil,
		}
	}
}

// finish records a terminal-adjacent outcome and clears the next action.
func finish(outcome string) EffectResolver {
	return func(_ *model.Lead, _ time.Time) model.FieldSet {
		return model.FieldSet{
			model.ColOutcome:         outcome,
			model.ColNextAction:      nil,
			model.ColNextActionDueAt: nil,
		}
	}
}
