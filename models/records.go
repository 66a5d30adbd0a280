package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/payroll_bridge/matching"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Employee is a plan participant as received from payroll. A merged-away employee stays in the
// table, inactive and pointing at the record it was merged into.
type Employee struct {
	ID           int        `gorm:"primary_key" json:"id"`
	TenantId     string     `gorm:"size:64;index;not null" json:"tenant_id"`
	ExternalId   string     `gorm:"size:100;index" json:"external_id"`
	Ssn          string     `gorm:"size:20" json:"ssn"`
	FirstName    string     `gorm:"size:100" json:"first_name"`
	LastName     string     `gorm:"size:100" json:"last_name"`
	FullName     string     `gorm:"size:200" json:"full_name"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	Email        string     `gorm:"size:200" json:"email"`
	Phone        string     `gorm:"size:30" json:"phone"`
	IsActive     *bool      `gorm:"not null;default:true" json:"is_active"`
	MergedIntoId *int       `gorm:"index" json:"merged_into_id"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e Employee) displayName() string {
	if strings.TrimSpace(e.FullName) != "" {
		return e.FullName
	}
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

func (e Employee) ToRecord() matching.Record {
	fields := map[string]string{
		"tenant_id":  e.TenantId,
		"ssn":        e.Ssn,
		"full_name":  e.displayName(),
		"first_name": e.FirstName,
		"last_name":  e.LastName,
		"email":      e.Email,
		"phone":      e.Phone,
	}
	if e.DateOfBirth != nil {
		fields["date_of_birth"] = e.DateOfBirth.Format(dateLayout)
	}
	return matching.Record{ID: e.ID, Fields: fields}
}

// Contribution is one payroll deduction line. Amounts are minor currency units.
type Contribution struct {
	ID                  int            `gorm:"primary_key" json:"id"`
	TenantId            string         `gorm:"size:64;index;not null" json:"tenant_id"`
	EmployeeId          int            `gorm:"index;not null" json:"employee_id"`
	PlanId              string         `gorm:"size:64" json:"plan_id"`
	PayrollDate         time.Time      `gorm:"index;not null" json:"payroll_date"`
	PreTaxAmount        int64          `gorm:"not null;default:0" json:"pre_tax_amount"`
	RothAmount          int64          `gorm:"not null;default:0" json:"roth_amount"`
	AfterTaxAmount      int64          `gorm:"not null;default:0" json:"after_tax_amount"`
	EmployerMatchAmount int64          `gorm:"not null;default:0" json:"employer_match_amount"`
	LoanRepaymentAmount int64          `gorm:"not null;default:0" json:"loan_repayment_amount"`
	Source              string         `gorm:"size:50" json:"source"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c Contribution) ToRecord() matching.Record {
	return matching.Record{ID: c.ID, Fields: map[string]string{
		"tenant_id":             c.TenantId,
		"employee_id":           strconv.Itoa(c.EmployeeId),
		"plan_id":               c.PlanId,
		"payroll_date":          c.PayrollDate.Format(dateLayout),
		"pre_tax_amount":        strconv.FormatInt(c.PreTaxAmount, 10),
		"roth_amount":           strconv.FormatInt(c.RothAmount, 10),
		"after_tax_amount":      strconv.FormatInt(c.AfterTaxAmount, 10),
		"employer_match_amount": strconv.FormatInt(c.EmployerMatchAmount, 10),
		"loan_repayment_amount": strconv.FormatInt(c.LoanRepaymentAmount, 10),
	}}
}

// Election is an employee's deferral election for a plan.
type Election struct {
	ID                  int       `gorm:"primary_key" json:"id"`
	TenantId            string    `gorm:"size:64;index;not null" json:"tenant_id"`
	EmployeeId          int       `gorm:"index;not null" json:"employee_id"`
	PlanId              string    `gorm:"size:64" json:"plan_id"`
	DeferralBasisPoints int       `gorm:"not null;default:0" json:"deferral_basis_points"`
	EffectiveDate       time.Time `json:"effective_date"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Loan is a participant loan repaid through payroll.
type Loan struct {
	ID              int       `gorm:"primary_key" json:"id"`
	TenantId        string    `gorm:"size:64;index;not null" json:"tenant_id"`
	EmployeeId      int       `gorm:"index;not null" json:"employee_id"`
	PlanId          string    `gorm:"size:64" json:"plan_id"`
	PrincipalAmount int64     `gorm:"not null;default:0" json:"principal_amount"`
	RepaymentAmount int64     `gorm:"not null;default:0" json:"repayment_amount"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SystemLedgerEntry is one amount as reported by an external system (payroll provider or
// recordkeeper) for a reconciliation category and date. Written by the ingestion jobs.
type SystemLedgerEntry struct {
	ID               int       `gorm:"primary_key" json:"id"`
	TenantId         string    `gorm:"size:64;not null;index:idx_ledger_lookup" json:"tenant_id"`
	SystemName       string    `gorm:"size:50;not null;index:idx_ledger_lookup" json:"system_name"`
	Category         string    `gorm:"size:50;not null;index:idx_ledger_lookup" json:"category"`
	EntryDate        time.Time `gorm:"not null;index:idx_ledger_lookup" json:"entry_date"`
	MatchingKey      string    `gorm:"size:200;not null" json:"matching_key"`
	Amount           int64     `gorm:"not null" json:"amount"`
	ExternalRecordId string    `gorm:"size:100" json:"external_record_id"`
	Payload          string    `gorm:"type:text" json:"payload"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
