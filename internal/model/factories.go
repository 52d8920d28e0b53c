package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewLead creates a Lead with fake identity data in status NEW and all
// action flags false. A mutate function, when given, adjusts the lead before
// it is returned.
func NewLead(mutate ...func(*Lead)) *Lead {
	base := &Lead{
		ID:             uuid.New().String(),
		OrganizationID: "org_" + gofakeit.LetterN(10),
		Status:         StatusNew,
		Name:           gofakeit.Name(),
		Company:        gofakeit.Company(),
		Email:          gofakeit.Email(),
		Mobile:         gofakeit.Phone(),
		MobileValid:    true,
		LastActionAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 72)) * time.Hour),
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(73, 200)) * time.Hour),
		UpdatedAt:      utils.Now(),
	}

	for _, fn := range mutate {
		if fn != nil {
			fn(base)
		}
	}
	return base
}

// NewAuditLogEntry creates an AuditLogEntry with fake data for tests.
func NewAuditLogEntry(mutate ...func(*AuditLogEntry)) *AuditLogEntry {
	base := &AuditLogEntry{
		ID:             uuid.New().String(),
		LeadID:         uuid.New().String(),
		OrganizationID: "org_" + gofakeit.LetterN(10),
		Actor:          gofakeit.Username(),
		Action:         AuditActionStatusChange,
		Source:         string(SourceAPI),
		CreatedAt:      utils.Now(),
	}

	for _, fn := range mutate {
		if fn != nil {
			fn(base)
		}
	}
	return base
}
