package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/sirupsen/logrus"
)

// ErrPoisonMessage marks a message that can never succeed. Consumers ack it instead of retrying.
var ErrPoisonMessage = errors.New("poison message")

// ReconciliationRequest is the reconciliation part of a scheduled run message.
type ReconciliationRequest struct {
	// ReconciliationDate is YYYY-MM-DD.
	ReconciliationDate string                 `json:"reconciliation_date" validate:"required"`
	SourceSystem       string                 `json:"source_system" validate:"required"`
	DestinationSystem  string                 `json:"destination_system" validate:"required"`
	ReconciliationType string                 `json:"reconciliation_type" validate:"required"`
	Tolerance          *models.ToleranceInput `json:"tolerance"`
}

// ScheduledRunMessage is the payload the scheduler publishes for one tenant run.
type ScheduledRunMessage struct {
	TenantId       string                 `json:"tenant_id" validate:"required"`
	RunType        string                 `json:"run_type" validate:"required,oneof=duplicate_scan reconciliation"`
	CorrelationId  string                 `json:"correlation_id"`
	Scan           *models.ScanOptions    `json:"scan"`
	Reconciliation *ReconciliationRequest `json:"reconciliation"`
}

func handlerName(runType string) string {
	return "scheduled_" + runType
}

func poison(err error) error {
	return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
}

// ProcessScheduledRun executes one scheduled run at most once per message id. A reconciliation
// that already has a report counts as done.
func ProcessScheduledRun(ctx context.Context, messageId string, m ScheduledRunMessage) error {
	logger := config.GetLogger()
	if err := utils.ValidateStruct(m); err != nil {
		return poison(err)
	}
	if messageId == "" {
		return poison(errors.New("message id is required"))
	}

	ctx = utils.SetSystemActor(ctx, m.TenantId)
	if m.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, m.CorrelationId)
	}
	fields := logrus.Fields{
		"field":          "ProcessScheduledRun",
		"tenant_id":      m.TenantId,
		"run_type":       m.RunType,
		"message_id":     messageId,
		"correlation_id": m.CorrelationId,
	}

	db := config.GetDB().WithContext(ctx)
	claim, done, err := ClaimRun(db, m.TenantId, handlerName(m.RunType), messageId)
	if err != nil {
		return err
	}
	if done {
		logger.WithFields(fields).Info("scheduled run already processed; skipping")
		return nil
	}

	runErr := runScheduled(ctx, m)
	if runErr != nil && m.RunType == models.RunTypeReconciliation && errors.Is(runErr, utils.ErrConflict) {
		if reportCompleted(ctx, m) {
			logger.WithFields(fields).Info("reconciliation report already completed: " + runErr.Error())
			runErr = nil
		}
	}
	if runErr != nil {
		if markErr := claim.Fail(runErr); markErr != nil {
			config.LogError(logger, "scheduledRun.go", "ProcessScheduledRun", "Marking run claim failed", messageId, markErr)
		}
		if errors.Is(runErr, utils.ErrValidation) {
			return poison(runErr)
		}
		return runErr
	}
	if err := claim.Succeed(); err != nil {
		return err
	}
	logger.WithFields(fields).Info("scheduled run finished")
	return nil
}

func runScheduled(ctx context.Context, m ScheduledRunMessage) error {
	switch m.RunType {
	case models.RunTypeDuplicateScan:
		if m.Scan == nil {
			return utils.ValidationError("scan options are required")
		}
		_, err := models.ScanDuplicates(ctx, *m.Scan)
		return err

	case models.RunTypeReconciliation:
		r := m.Reconciliation
		if r == nil {
			return utils.ValidationError("reconciliation request is required")
		}
		if err := utils.ValidateStruct(r); err != nil {
			return err
		}
		input, err := r.runInput()
		if err != nil {
			return err
		}
		_, err = models.RunReconciliation(ctx, input)
		return err
	}
	return utils.ValidationError("unknown run type %q", m.RunType)
}

func (r ReconciliationRequest) runInput() (models.RunReconciliationInput, error) {
	date, err := utils.ParseDate(r.ReconciliationDate)
	if err != nil {
		return models.RunReconciliationInput{}, utils.ValidationError("invalid reconciliation_date %q", r.ReconciliationDate)
	}
	return models.RunReconciliationInput{
		ReconciliationDate: date,
		SourceSystem:       r.SourceSystem,
		DestinationSystem:  r.DestinationSystem,
		ReconciliationType: r.ReconciliationType,
		Tolerance:          r.Tolerance,
	}, nil
}

// reportCompleted reports whether the conflicting report already holds a result. A report that
// is still in progress is left to the retry.
func reportCompleted(ctx context.Context, m ScheduledRunMessage) bool {
	input, err := m.Reconciliation.runInput()
	if err != nil {
		return false
	}
	report, err := models.FindReconciliationReport(ctx, input)
	if err != nil {
		config.LogError(config.GetLogger(), "scheduledRun.go", "reportCompleted", "Loading reconciliation report", input, err)
		return false
	}
	return report.Status.Completed()
}
