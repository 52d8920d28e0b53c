package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLogEntry is an append-only record of a single applied transition or
// logged action. Entries are created inside the same transaction as the lead
// update they describe and are never mutated or deleted.
type AuditLogEntry struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	LeadID         string         `json:"lead_id" gorm:"column:lead_id;index;type:text" validate:"required"`
	OrganizationID string         `json:"organization_id" gorm:"column:organization_id;index;type:text"`
	Actor          string         `json:"actor" gorm:"type:text" validate:"required"`
	Action         string         `json:"action" gorm:"type:text"` // status_change or action_logged
	Before         datatypes.JSON `json:"before,omitempty" gorm:"type:jsonb"`
	After          datatypes.JSON `json:"after,omitempty" gorm:"type:jsonb"`
	Source         string         `json:"source" gorm:"type:text" validate:"required,oneof=api agent sync scheduler"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the AuditLogEntry model.
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}
