package models

import (
	"time"

	"github.com/mmdatafocus/payroll_bridge/utils"
	"gorm.io/gorm"
)

// History is the audit trail of finding resolutions, merges and item resolutions. Before and
// After hold JSON snapshots of the row.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	TenantId      string    `gorm:"size:64;index;not null" json:"tenant_id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:50" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CorrelationId string    `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// historyAuditSink writes audit entries as History rows inside the caller's transaction. The
// actor and correlation id come from the transaction's context.
type historyAuditSink struct{}

func (historyAuditSink) Append(tx *gorm.DB, entry AuditEntry) error {
	ctx := tx.Statement.Context
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return err
	}
	before, err := utils.JSONText(entry.Before)
	if err != nil {
		return err
	}
	after, err := utils.JSONText(entry.After)
	if err != nil {
		return err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	return tx.Create(&History{
		TenantId:      tenantId,
		ActionType:    entry.ActionType,
		Before:        before,
		After:         after,
		Description:   entry.Description,
		ReferenceID:   entry.ReferenceId,
		ReferenceType: entry.ReferenceType,
		UserId:        userId,
		UserName:      utils.ActorFromContext(ctx),
		CorrelationId: correlationId,
	}).Error
}

func appendAudit(tx *gorm.DB, entry AuditEntry) error {
	if err := collaborators.Audit.Append(tx, entry); err != nil {
		return utils.DBError(err, "audit")
	}
	return nil
}
