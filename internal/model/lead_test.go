package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadApply(t *testing.T) {
	now := time.Now().UTC()
	due := now.Add(48 * time.Hour)
	lead := NewLead()

	lead.Apply(FieldSet{
		ColStatus:          StatusWaitingD2,
		ColLastActionAt:    now,
		ColNextAction:      NextActionCall,
		ColNextActionDueAt: due,
	})
	assert.Equal(t, StatusWaitingD2, lead.Status)
	assert.Equal(t, now, lead.LastActionAt)
	require.NotNil(t, lead.NextAction)
	assert.Equal(t, NextActionCall, *lead.NextAction)
	require.NotNil(t, lead.NextActionDueAt)
	assert.Equal(t, due, *lead.NextActionDueAt)

	// Nil values clear pointer fields; absent keys leave fields untouched
	lead.Apply(FieldSet{
		ColNextAction:      nil,
		ColNextActionDueAt: nil,
		ColOutcome:         OutcomeQualified,
		ColQualified:       true,
	})
	assert.Nil(t, lead.NextAction)
	assert.Nil(t, lead.NextActionDueAt)
	require.NotNil(t, lead.Outcome)
	assert.Equal(t, OutcomeQualified, *lead.Outcome)
	require.NotNil(t, lead.Qualified)
	assert.True(t, *lead.Qualified)
	assert.Equal(t, StatusWaitingD2, lead.Status)

	lead.Apply(FieldSet{ColRepliedAt: now, ColCallDone: true})
	require.NotNil(t, lead.RepliedAt)
	assert.Equal(t, now, *lead.RepliedAt)
	assert.True(t, lead.CallDone)
}

func TestActionFlagMapCoversAllFlags(t *testing.T) {
	expected := map[string]string{
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
	assert.Equal(t, expected, ActionFlagMap)
}

func TestStatusValid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, LeadStatus("ARCHIVED").Valid())
	assert.False(t, LeadStatus("").Valid())
}

func TestNewLeadFactory(t *testing.T) {
	lead := NewLead()
	assert.NotEmpty(t, lead.ID)
	assert.NotEmpty(t, lead.OrganizationID)
	assert.Equal(t, StatusNew, lead.Status)
	assert.False(t, lead.EmailSent1)

	mutated := NewLead(func(l *Lead) { l.Status = StatusCompleted })
	assert.Equal(t, StatusCompleted, mutated.Status)
}
