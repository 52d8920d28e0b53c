package model

import (
	"time"
)

// Column names shared between the rule table's side-effect sets and the
// storage layer's partial updates.
const (
	ColStatus          = "status"
	ColLastActionAt    = "last_action_utc"
	ColNextAction      = "next_action"
	ColNextActionDueAt = "next_action_due_utc"
	ColOutcome         = "outcome"
	ColQualified       = "qualified"
	ColEmailSent1      = "email_sent1"
	ColDmLiSent1       = "dm_li_sent1"
	ColDmFbSent1       = "dm_fb_sent1"
	ColDmIgSent1       = "dm_ig_sent1"
	ColCallDone        = "call_done"
	ColEmailSent2      = "email_sent2"
	ColDmSent2         = "dm_sent2"
	ColWaVoiceSent     = "wa_voice_sent"
	ColRepliedAt       = "replied_at_utc"
)

// FieldSet is a partial update keyed by column name. A nil value writes NULL;
// absent keys leave the column unchanged.
type FieldSet map[string]interface{}

// Lead is the subject of the state machine, stored in PostgreSQL.
type Lead struct {
	ID             string     `json:"id" gorm:"primaryKey;type:text"`
	OrganizationID string     `json:"organization_id" gorm:"column:organization_id;index;type:text" validate:"required"`
	Status         LeadStatus `json:"status" gorm:"type:text;index;default:NEW"`

	Name    string `json:"name,omitempty" gorm:"type:text"`
	Company string `json:"company,omitempty" gorm:"type:text"`
	Email   string `json:"email,omitempty" gorm:"type:text"`
	Mobile  string `json:"mobile,omitempty" gorm:"type:text"`

	// Outreach action flags, set by LogAction and only read by the
	// transition preconditions.
	EmailSent1  bool `json:"email_sent1" gorm:"column:email_sent1;default:false"`
	DmLiSent1   bool `json:"dm_li_sent1" gorm:"column:dm_li_sent1;default:false"`
	DmFbSent1   bool `json:"dm_fb_sent1" gorm:"column:dm_fb_sent1;default:false"`
	DmIgSent1   bool `json:"dm_ig_sent1" gorm:"column:dm_ig_sent1;default:false"`
	CallDone    bool `json:"call_done" gorm:"column:call_done;default:false"`
	EmailSent2  bool `json:"email_sent2" gorm:"column:email_sent2;default:false"`
	DmSent2     bool `json:"dm_sent2" gorm:"column:dm_sent2;default:false"`
	WaVoiceSent bool `json:"wa_voice_sent" gorm:"column:wa_voice_sent;default:false"`

	RepliedAt   *time.Time `json:"replied_at_utc,omitempty" gorm:"column:replied_at_utc"`
	MobileValid bool       `json:"mobile_valid" gorm:"column:mobile_valid;default:false"`

	// Written only by the transition engine.
	LastActionAt    time.Time  `json:"last_action_utc" gorm:"column:last_action_utc"`
	NextAction      *string    `json:"next_action,omitempty" gorm:"column:next_action;type:text"`
	NextActionDueAt *time.Time `json:"next_action_due_utc,omitempty" gorm:"column:next_action_due_utc;index"`
	Outcome         *string    `json:"outcome,omitempty" gorm:"type:text"`
	Qualified       *bool      `json:"qualified,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Lead model.
func (Lead) TableName() string {
	return "leads"
}

// Apply mutates the lead in place with the given partial field set. The
// engine uses it so the chain loop sees its own prior writes without
// re-querying inside the transaction.
func (l *Lead) Apply(fields FieldSet) {
	for col, val := range fields {
		switch col {
		case ColStatus:
			l.Status = val.(LeadStatus)
		case ColLastActionAt:
			l.LastActionAt = val.(time.Time)
		case ColNextAction:
			l.NextAction = toStringPtr(val)
		case ColNextActionDueAt:
			l.NextActionDueAt = toTimePtr(val)
		case ColOutcome:
			l.Outcome = toStringPtr(val)
		case ColQualified:
			l.Qualified = toBoolPtr(val)
		case ColEmailSent1:
			l.EmailSent1 = val.(bool)
		case ColDmLiSent1:
			l.DmLiSent1 = val.(bool)
		case ColDmFbSent1:
			l.DmFbSent1 = val.(bool)
		case ColDmIgSent1:
			l.DmIgSent1 = val.(bool)
		case ColCallDone:
			l.CallDone = val.(bool)
		case ColEmailSent2:
			l.EmailSent2 = val.(bool)
		case ColDmSent2:
			l.DmSent2 = val.(bool)
		case ColWaVoiceSent:
			l.WaVoiceSent = val.(bool)
		case ColRepliedAt:
			l.RepliedAt = toTimePtr(val)
		}
	}
}

func toStringPtr(val interface{}) *string {
	if val == nil {
		return nil
	}
	s := val.(string)
	return &s
}

func toTimePtr(val interface{}) *time.Time {
	if val == nil {
		return nil
	}
	t := val.(time.Time)
	return &t
}

func toBoolPtr(val interface{}) *bool {
	if val == nil {
		return nil
	}
	b := val.(bool)
	return &b
}
