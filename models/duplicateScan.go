package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("payroll-bridge/models")

type ScanOptions struct {
	RecordType matching.RecordType `json:"record_type" validate:"required"`
	// MinScore overrides the configured minimum score for this run.
	MinScore *float64 `json:"min_score" validate:"omitempty,gte=0,lte=1"`
	// Fields restricts scoring to these rule fields.
	Fields   []string   `json:"fields"`
	DryRun   bool       `json:"dry_run"`
	FromDate *time.Time `json:"from_date"`
	ToDate   *time.Time `json:"to_date"`
}

type ScanResult struct {
	RecordsScanned           int   `json:"records_scanned"`
	PotentialDuplicatesFound int   `json:"potential_duplicates_found"`
	NewDuplicates            int   `json:"new_duplicates"`
	ExistingDuplicates       int   `json:"existing_duplicates"`
	SuppressedDuplicates     int   `json:"suppressed_duplicates"`
	ScanDurationMs           int64 `json:"scan_duration_ms"`
	DryRun                   bool  `json:"dry_run"`
	// Pairs lists the scored pairs of a dry run.
	Pairs []matching.DuplicatePair `json:"pairs,omitempty"`
}

type pairKey struct{ low, high int }

// ScanDuplicates scores every blocked pair of the tenant's records and records new
// POTENTIAL_DUPLICATE findings. Pairs with an open finding count as existing; pairs a reviewer
// already closed (NOT_DUPLICATE or MERGED) are suppressed. A dry run persists nothing.
func ScanDuplicates(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(opts); err != nil {
		return nil, err
	}
	if opts.FromDate != nil && opts.ToDate != nil && opts.ToDate.Before(*opts.FromDate) {
		return nil, utils.ValidationError("to_date is before from_date")
	}
	cfg, err := matchingConfig(opts.RecordType)
	if err != nil {
		return nil, err
	}
	cfg, err = cfg.WithOverrides(opts.MinScore, opts.Fields)
	if err != nil {
		return nil, utils.ValidationError("%v", err)
	}

	ctx, span := tracer.Start(ctx, "ScanDuplicates")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantId),
		attribute.String("record_type", string(opts.RecordType)),
		attribute.Bool("dry_run", opts.DryRun),
	)

	logger := config.GetLogger()
	started := time.Now()

	records, err := collaborators.Records.FetchRecords(ctx, tenantId, opts.RecordType, RecordScope{FromDate: opts.FromDate, ToDate: opts.ToDate})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch records")
		config.LogError(logger, "duplicateScan.go", "ScanDuplicates", "Fetching records", opts, err)
		return nil, utils.DependencyFailure(err, "fetch %s records", opts.RecordType)
	}

	pairs := matching.FindDuplicatePairs(records, cfg)
	result := &ScanResult{
		RecordsScanned:           len(records),
		PotentialDuplicatesFound: len(pairs),
		DryRun:                   opts.DryRun,
	}

	known, err := knownFindingStatuses(ctx, tenantId, opts.RecordType)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	db := config.GetDB().WithContext(ctx)
	for _, pair := range pairs {
		key := pairKey{pair.OriginalID, pair.DuplicateID}
		if status, ok := known[key]; ok {
			if status.IsOpen() {
				result.ExistingDuplicates++
			} else {
				result.SuppressedDuplicates++
			}
			continue
		}
		if opts.DryRun {
			result.NewDuplicates++
			continue
		}

		finding, err := newFinding(tenantId, opts.RecordType, pair)
		if err != nil {
			return nil, err
		}
		// A concurrent scanner may have inserted the same open pair since we looked.
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(finding)
		if res.Error != nil {
			span.RecordError(res.Error)
			span.SetStatus(codes.Error, "insert finding")
			config.LogError(logger, "duplicateScan.go", "ScanDuplicates", "Inserting finding", pair, res.Error)
			return nil, utils.DependencyFailure(res.Error, "insert duplicate finding")
		}
		if res.RowsAffected == 0 {
			result.ExistingDuplicates++
		} else {
			result.NewDuplicates++
		}
		known[key] = FindingStatusPotentialDuplicate
	}

	if opts.DryRun {
		result.Pairs = pairs
	}
	result.ScanDurationMs = time.Since(started).Milliseconds()
	span.SetAttributes(
		attribute.Int("records_scanned", result.RecordsScanned),
		attribute.Int("new_duplicates", result.NewDuplicates),
	)

	logger.WithFields(logrus.Fields{
		"field":       "ScanDuplicates",
		"tenant_id":   tenantId,
		"record_type": opts.RecordType,
		"scanned":     result.RecordsScanned,
		"found":       result.PotentialDuplicatesFound,
		"new":         result.NewDuplicates,
		"existing":    result.ExistingDuplicates,
		"suppressed":  result.SuppressedDuplicates,
		"dry_run":     opts.DryRun,
	}).Info("duplicate scan finished")

	if !opts.DryRun {
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		notify(ctx, RunEvent{
			EventType:     "duplicate_scan.completed",
			TenantId:      tenantId,
			RunType:       RunTypeDuplicateScan,
			RecordType:    string(opts.RecordType),
			Status:        "COMPLETED",
			CorrelationId: correlationId,
			Summary: map[string]any{
				"records_scanned": result.RecordsScanned,
				"new_duplicates":  result.NewDuplicates,
			},
		})
		invalidateDashboard(tenantId)
	}
	return result, nil
}

// knownFindingStatuses maps every pair that already has a finding to the status that decides
// whether a scan may report it again. Open findings take precedence over closed ones.
func knownFindingStatuses(ctx context.Context, tenantId string, recordType matching.RecordType) (map[pairKey]FindingStatus, error) {
	type row struct {
		PairLowId  int
		PairHighId int
		Status     FindingStatus
	}
	var rows []row
	err := config.GetDB().WithContext(ctx).
		Model(&DuplicateFinding{}).
		Select("pair_low_id, pair_high_id, status").
		Where("tenant_id = ? AND record_type = ?", tenantId, recordType).
		Scan(&rows).Error
	if err != nil {
		return nil, utils.DBError(err, "load findings")
	}
	known := make(map[pairKey]FindingStatus, len(rows))
	for _, r := range rows {
		key := pairKey{r.PairLowId, r.PairHighId}
		if prev, ok := known[key]; ok && prev.IsOpen() {
			continue
		}
		known[key] = r.Status
	}
	return known, nil
}

type CheckDuplicateInput struct {
	RecordType matching.RecordType `json:"record_type" validate:"required"`
	Fields     map[string]string   `json:"fields" validate:"required"`
}

type CheckDuplicateResult struct {
	IsPotentialDuplicate bool                        `json:"is_potential_duplicate"`
	MatchedRecordId      *int                        `json:"matched_record_id"`
	Score                float64                     `json:"score"`
	MatchFields          []matching.MatchFieldResult `json:"match_fields"`
}

// CheckDuplicate scores a record that has not been stored yet against the existing records of
// its blocking bucket and reports the best match.
func CheckDuplicate(ctx context.Context, input CheckDuplicateInput) (*CheckDuplicateResult, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	cfg, err := matchingConfig(input.RecordType)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "CheckDuplicate")
	defer span.End()

	fields := make(map[string]string, len(input.Fields)+1)
	for k, v := range input.Fields {
		fields[k] = v
	}
	fields["tenant_id"] = tenantId
	candidate := matching.Record{Fields: fields}

	existing, err := collaborators.Records.FetchRecords(ctx, tenantId, input.RecordType, RecordScope{})
	if err != nil {
		span.RecordError(err)
		return nil, utils.DependencyFailure(err, "fetch %s records", input.RecordType)
	}

	result := &CheckDuplicateResult{MatchFields: []matching.MatchFieldResult{}}
	best, score, ok := matching.BestMatch(candidate, existing, cfg)
	if !ok {
		return result, nil
	}
	id := best.ID
	result.MatchedRecordId = &id
	result.Score = score
	result.IsPotentialDuplicate = matching.IsPotentialDuplicate(score, cfg)
	for _, r := range matching.CompareRecords(best, candidate, cfg) {
		if r.EffectiveSimilarity() >= cfg.ReportThreshold {
			result.MatchFields = append(result.MatchFields, r)
		}
	}
	return result, nil
}
