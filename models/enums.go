package models

import "github.com/mmdatafocus/payroll_bridge/matching"

type FindingStatus string

const (
	FindingStatusPotentialDuplicate FindingStatus = "POTENTIAL_DUPLICATE"
	FindingStatusConfirmedDuplicate FindingStatus = "CONFIRMED_DUPLICATE"
	FindingStatusNotDuplicate       FindingStatus = "NOT_DUPLICATE"
	FindingStatusMerged             FindingStatus = "MERGED"
)

func (s FindingStatus) IsValid() bool {
	switch s {
	case FindingStatusPotentialDuplicate, FindingStatusConfirmedDuplicate, FindingStatusNotDuplicate, FindingStatusMerged:
		return true
	}
	return false
}

// IsOpen reports whether a finding still blocks a new finding for the same pair.
func (s FindingStatus) IsOpen() bool {
	return s == FindingStatusPotentialDuplicate || s == FindingStatusConfirmedDuplicate
}

type ReportStatus string

const (
	ReportStatusPending            ReportStatus = "PENDING"
	ReportStatusInProgress         ReportStatus = "IN_PROGRESS"
	ReportStatusReconciled         ReportStatus = "RECONCILED"
	ReportStatusDiscrepanciesFound ReportStatus = "DISCREPANCIES_FOUND"
	ReportStatusFailed             ReportStatus = "FAILED"
)

func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusPending, ReportStatusInProgress, ReportStatusReconciled, ReportStatusDiscrepanciesFound, ReportStatusFailed:
		return true
	}
	return false
}

// Completed reports whether a run finished with a result.
func (s ReportStatus) Completed() bool {
	return s == ReportStatusReconciled || s == ReportStatusDiscrepanciesFound
}

type ResolutionAction string

const (
	ResolutionActionAutoCorrected ResolutionAction = "AUTO_CORRECTED"
	ResolutionActionManualReview  ResolutionAction = "MANUAL_REVIEW"
	ResolutionActionIgnored       ResolutionAction = "IGNORED"
	ResolutionActionAdjusted      ResolutionAction = "ADJUSTED"
)

func (a ResolutionAction) IsValid() bool {
	switch a {
	case ResolutionActionAutoCorrected, ResolutionActionManualReview, ResolutionActionIgnored, ResolutionActionAdjusted:
		return true
	}
	return false
}

// MatchStatus of a reconciliation item.
type MatchStatus = matching.ReconcileStatus

const (
	MatchStatusMatched         = matching.ReconcileStatusMatched
	MatchStatusSourceOnly      = matching.ReconcileStatusSourceOnly
	MatchStatusDestinationOnly = matching.ReconcileStatusDestinationOnly
	MatchStatusAmountMismatch  = matching.ReconcileStatusAmountMismatch
	MatchStatusDataMismatch    = matching.ReconcileStatusDataMismatch
)

const (
	HistoryActionCreate  = "CREATE"
	HistoryActionResolve = "RESOLVE"
	HistoryActionMerge   = "MERGE"
	HistoryActionRun     = "RUN"

	HistoryReferenceFinding = "DuplicateFinding"
	HistoryReferenceReport  = "ReconciliationReport"
	HistoryReferenceItem    = "ReconciliationItem"
)
