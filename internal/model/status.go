package model

// LeadStatus is a node in the lead outreach state machine.
type LeadStatus string

const (
	StatusNew           LeadStatus = "NEW"
	StatusContacted1    LeadStatus = "CONTACTED_1"
	StatusWaitingD2     LeadStatus = "WAITING_D2"
	StatusCallDue       LeadStatus = "CALL_DUE"
	StatusCalled        LeadStatus = "CALLED"
	StatusWaitingD1     LeadStatus = "WAITING_D1"
	StatusContacted2    LeadStatus = "CONTACTED_2"
	StatusWaVoiceDue    LeadStatus = "WA_VOICE_DUE"
	StatusReplied       LeadStatus = "REPLIED"
	StatusQualified     LeadStatus = "QUALIFIED"
	StatusNotInterested LeadStatus = "NOT_INTERESTED"
	StatusCompleted     LeadStatus = "COMPLETED"
)

// AllStatuses lists every status in pipeline order.
var AllStatuses = []LeadStatus{
	StatusNew,
	StatusContacted1,
	StatusWaitingD2,
	StatusCallDue,
	StatusCalled,
	StatusWaitingD1,
	StatusContacted2,
	StatusWaVoiceDue,
	StatusReplied,
	StatusQualified,
	StatusNotInterested,
	StatusCompleted,
}

// WaitingStatuses are the statuses that carry a non-null next_action_due_utc.
var WaitingStatuses = []LeadStatus{StatusWaitingD2, StatusWaitingD1}

// Valid reports whether s is a member of the fixed status set.
func (s LeadStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s LeadStatus) String() string {
	return string(s)
}

// AuditSource identifies which kind of caller requested a transition.
type AuditSource string

const (
	SourceAPI       AuditSource = "api"
	SourceAgent     AuditSource = "agent"
	SourceSync      AuditSource = "sync"
	SourceScheduler AuditSource = "scheduler"
)

// Audit entry action kinds.
const (
	AuditActionStatusChange = "status_change"
	AuditActionLogged       = "action_logged"
)

// Next-action codes written by the transition side effects.
const (
	NextActionSendEmail1  = "send_email_1"
	NextActionCall        = "call"
	NextActionSendEmail2  = "send_email_2"
	NextActionSendWaVoice = "send_wa_voice"
	NextActionReviewReply = "review_reply"
)

// Terminal outcome classifications.
const (
	OutcomePipelineComplete         = "pipeline_complete"
	OutcomePipelineCompleteNoMobile = "pipeline_complete_no_mobile"
	OutcomeQualified                = "qualified"
	OutcomeNotInterested            = "not_interested"
)

// ActionFlagMap maps a logged outreach action name to the lead column it
// flips. `mark_replied` stamps a timestamp instead of a boolean.
var ActionFlagMap = map[string]string{
	"email_sent_1":  ColEmailSent1,
	"dm_li_sent_1":  ColDmLiSent1,
	"dm_fb_sent_1":  ColDmFbSent1,
	"dm_ig_sent_1":  ColDmIgSent1,
	"call_done":     ColCallDone,
	"email_sent_2":  ColEmailSent2,
	"dm_sent_2":     ColDmSent2,
	"wa_voice_sent": ColWaVoiceSent,
	"mark_replied":  ColRepliedAt,
}
