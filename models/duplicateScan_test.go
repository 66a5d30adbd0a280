package models_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDuplicateContributions(t *testing.T, ctx context.Context) (*models.Contribution, *models.Contribution) {
	t.Helper()
	emp := createEmployee(t, ctx, models.Employee{FullName: "Jane Doe", Ssn: "123-45-6789"})
	a := createContribution(t, ctx, models.Contribution{EmployeeId: emp.ID, PayrollDate: payrollDate(), PreTaxAmount: 50000, EmployerMatchAmount: 2500})
	b := createContribution(t, ctx, models.Contribution{EmployeeId: emp.ID, PayrollDate: payrollDate(), PreTaxAmount: 50000, EmployerMatchAmount: 2500})
	// different pay date, never in the same bucket
	createContribution(t, ctx, models.Contribution{EmployeeId: emp.ID, PayrollDate: payrollDate().AddDate(0, 0, 14), PreTaxAmount: 50000, EmployerMatchAmount: 2500})
	return a, b
}

func TestScanDuplicatesIsIdempotent(t *testing.T) {
	ctx, notifier := setupDB(t)
	seedDuplicateContributions(t, ctx)

	first, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution})
	require.NoError(t, err)
	assert.Equal(t, 3, first.RecordsScanned)
	assert.Equal(t, 1, first.PotentialDuplicatesFound)
	assert.Equal(t, 1, first.NewDuplicates)
	assert.Equal(t, 0, first.ExistingDuplicates)
	assert.Empty(t, first.Pairs)

	second, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution})
	require.NoError(t, err)
	assert.Equal(t, 1, second.PotentialDuplicatesFound)
	assert.Equal(t, 0, second.NewDuplicates)
	assert.Equal(t, 1, second.ExistingDuplicates)

	assert.EqualValues(t, 1, countRows(t, &models.DuplicateFinding{}, "tenant_id = ?", testTenant))

	page, err := models.ListDuplicateFindings(ctx, models.FindingFilter{})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	finding := page.Edges[0].Node
	assert.Equal(t, models.FindingStatusPotentialDuplicate, finding.Status)
	assert.InDelta(t, 1.0, finding.MatchScore, 1e-9)
	assert.NotEmpty(t, finding.FieldResults)
	assert.NotEqual(t, finding.OriginalRecordId, finding.DuplicateRecordId)

	require.Eventually(t, func() bool { return len(notifier.Events()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.RunTypeDuplicateScan, notifier.Events()[0].RunType)
}

func TestConcurrentScansRecordOneFinding(t *testing.T) {
	ctx, _ := setupDB(t)
	seedDuplicateContributions(t, ctx)

	const scanners = 8
	results := make([]*models.ScanResult, scanners)
	errs := make([]error, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution})
		}(i)
	}
	wg.Wait()

	created, existing := 0, 0
	for i := range results {
		require.NoError(t, errs[i])
		created += results[i].NewDuplicates
		existing += results[i].ExistingDuplicates
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, scanners-1, existing)
	assert.EqualValues(t, 1, countRows(t, &models.DuplicateFinding{}, "tenant_id = ?", testTenant))
}

func TestScanDuplicatesDryRunPersistsNothing(t *testing.T) {
	ctx, _ := setupDB(t)
	seedDuplicateContributions(t, ctx)

	result, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution, DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.NewDuplicates)
	require.Len(t, result.Pairs, 1)
	assert.EqualValues(t, 0, countRows(t, &models.DuplicateFinding{}, "1 = 1"))
}

func TestScanDuplicatesSuppressesClosedPairs(t *testing.T) {
	ctx, _ := setupDB(t)
	seedDuplicateContributions(t, ctx)

	_, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution})
	require.NoError(t, err)
	page, err := models.ListDuplicateFindings(ctx, models.FindingFilter{})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)

	_, err = models.ResolveDuplicateFinding(ctx, page.Edges[0].Node.ID, models.ResolveFindingInput{Status: models.FindingStatusNotDuplicate})
	require.NoError(t, err)

	again, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution})
	require.NoError(t, err)
	assert.Equal(t, 0, again.NewDuplicates)
	assert.Equal(t, 1, again.SuppressedDuplicates)
	assert.EqualValues(t, 1, countRows(t, &models.DuplicateFinding{}, "1 = 1"))
}

func TestScanDuplicatesHonoursOverridesAndScope(t *testing.T) {
	ctx, _ := setupDB(t)
	emp := createEmployee(t, ctx, models.Employee{FullName: "Jane Doe"})
	createContribution(t, ctx, models.Contribution{EmployeeId: emp.ID, PayrollDate: payrollDate(), PreTaxAmount: 50000})
	createContribution(t, ctx, models.Contribution{EmployeeId: emp.ID, PayrollDate: payrollDate(), PreTaxAmount: 90000})

	// only pre_tax_amount differs: 0.8 stays below 0.9
	result, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.PotentialDuplicatesFound)

	minScore := 0.5
	result, err = models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution, DryRun: true, MinScore: &minScore})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PotentialDuplicatesFound)

	from := payrollDate().AddDate(0, 0, 1)
	result, err = models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution, DryRun: true, MinScore: &minScore, FromDate: &from})
	require.NoError(t, err)
	assert.Equal(t, 0, result.RecordsScanned)
}

func TestScanDuplicatesRejectsBadInput(t *testing.T) {
	ctx, _ := setupDB(t)

	_, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: "invoice"})
	assert.ErrorIs(t, err, utils.ErrValidation)

	tooHigh := 1.5
	_, err = models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution, MinScore: &tooHigh})
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution, Fields: []string{"shoe_size"}})
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = models.ScanDuplicates(contextWithoutTenant(), models.ScanOptions{RecordType: matching.RecordTypeContribution})
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestScanDuplicatesSkipsMergedEmployees(t *testing.T) {
	ctx, _ := setupDB(t)
	keep := createEmployee(t, ctx, models.Employee{FullName: "Jane Doe", Ssn: "123-45-6789"})
	other := createEmployee(t, ctx, models.Employee{FullName: "JANE DOE", Ssn: "123456789"})
	createEmployee(t, ctx, models.Employee{FullName: "John Roe", Ssn: "987-65-4321"})

	result, err := models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeEmployee, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.PotentialDuplicatesFound)

	mustUpdateEmployee(t, ctx, other.ID, map[string]interface{}{"is_active": false, "merged_into_id": keep.ID})
	result, err = models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeEmployee, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsScanned)
	assert.Equal(t, 0, result.PotentialDuplicatesFound)
}

func TestCheckDuplicateReturnsBestMatch(t *testing.T) {
	ctx, _ := setupDB(t)
	jane := createEmployee(t, ctx, models.Employee{FullName: "Jane Doe", Ssn: "123-45-6789"})
	createEmployee(t, ctx, models.Employee{FullName: "John Roe", Ssn: "987-65-4321"})

	result, err := models.CheckDuplicate(ctx, models.CheckDuplicateInput{
		RecordType: matching.RecordTypeEmployee,
		Fields:     map[string]string{"full_name": "JANE  DOE", "ssn": "123 45 6789"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsPotentialDuplicate)
	require.NotNil(t, result.MatchedRecordId)
	assert.Equal(t, jane.ID, *result.MatchedRecordId)
	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.NotEmpty(t, result.MatchFields)

	result, err = models.CheckDuplicate(ctx, models.CheckDuplicateInput{
		RecordType: matching.RecordTypeEmployee,
		Fields:     map[string]string{"full_name": "Someone Else", "ssn": "111-22-3333"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsPotentialDuplicate)
}
