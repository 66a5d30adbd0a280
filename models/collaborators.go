package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecordScope narrows a record fetch. Zero value means every live record of the tenant.
type RecordScope struct {
	FromDate *time.Time
	ToDate   *time.Time
}

// RecordSource yields the records of one category for duplicate scanning.
type RecordSource interface {
	FetchRecords(ctx context.Context, tenantId string, recordType matching.RecordType, scope RecordScope) ([]matching.Record, error)
}

// LedgerSource yields the amounts one system reports for a reconciliation category and date.
type LedgerSource interface {
	FetchEntries(ctx context.Context, tenantId string, system string, category string, date time.Time) ([]matching.LedgerEntry, error)
}

type AuditEntry struct {
	ActionType    string
	ReferenceType string
	ReferenceId   int
	Before        any
	After         any
	Description   string
}

// AuditSink appends to the audit trail using the caller's transaction.
type AuditSink interface {
	Append(tx *gorm.DB, entry AuditEntry) error
}

const (
	RunTypeDuplicateScan  = "duplicate_scan"
	RunTypeReconciliation = "reconciliation"
)

// RunEvent announces a finished scan or reconciliation run.
type RunEvent struct {
	EventType     string         `json:"event_type"`
	TenantId      string         `json:"tenant_id"`
	RunType       string         `json:"run_type"`
	RecordType    string         `json:"record_type,omitempty"`
	ReportId      int            `json:"report_id,omitempty"`
	Status        string         `json:"status"`
	Summary       map[string]any `json:"summary,omitempty"`
	CorrelationId string         `json:"correlation_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event RunEvent) error
}

type pubsubNotifier struct{}

func (pubsubNotifier) Notify(ctx context.Context, event RunEvent) error {
	_, err := config.PublishMatchingEvent(ctx, event.TenantId, event)
	return err
}

// Collaborators are the outside systems the matching operations depend on.
type Collaborators struct {
	Records  RecordSource
	Ledger   LedgerSource
	Audit    AuditSink
	Notifier Notifier
}

func defaultCollaborators() Collaborators {
	return Collaborators{
		Records:  gormRecordSource{},
		Ledger:   gormLedgerSource{},
		Audit:    historyAuditSink{},
		Notifier: pubsubNotifier{},
	}
}

var collaborators = defaultCollaborators()

// UseCollaborators swaps the non-nil members of c in and returns a func restoring the previous set.
func UseCollaborators(c Collaborators) (restore func()) {
	prev := collaborators
	if c.Records != nil {
		collaborators.Records = c.Records
	}
	if c.Ledger != nil {
		collaborators.Ledger = c.Ledger
	}
	if c.Audit != nil {
		collaborators.Audit = c.Audit
	}
	if c.Notifier != nil {
		collaborators.Notifier = c.Notifier
	}
	return func() { collaborators = prev }
}

const notifyTimeout = 10 * time.Second

// notify publishes in the background. Delivery failures are logged and never reach the caller.
func notify(ctx context.Context, event RunEvent) {
	if !config.NotificationsEnabled() {
		return
	}
	notifier := collaborators.Notifier
	if notifier == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(bg, notifyTimeout)
		defer cancel()
		if err := notifier.Notify(nctx, event); err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"field":      "notify",
				"event_type": event.EventType,
				"tenant_id":  event.TenantId,
				"report_id":  event.ReportId,
			}).Warn("run notification failed: " + err.Error())
		}
	}()
}
