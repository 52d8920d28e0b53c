package engine

import (
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
)

// ChainResolver picks the status a freshly entered status silently advances
// to, evaluated against the already-updated lead.
type ChainResolver func(lead *model.Lead) model.LeadStatus

// autoChains maps each silently-advancing status to its chain resolver. A
// chain only fires when a rule exists for the resolved (status, target) pair;
// otherwise chaining halts without error.
var autoChains = map[model.LeadStatus]ChainResolver{
	model.StatusContacted1: func(_ *model.Lead) model.LeadStatus {
		return model.StatusWaitingD2
	},
	model.StatusCalled: func(_ *model.Lead) model.LeadStatus {
		return model.StatusWaitingD1
	},
	model.StatusContacted2: func(l *model.Lead) model.LeadStatus {
		if l.MobileValid {
			return model.StatusWaVoiceDue
		}
		return model.StatusCompleted
	},
}
