package workflow

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/payroll_bridge/models"
	"gorm.io/gorm"
)

// ErrRunInProgress means another worker holds a fresh claim on the same message.
var ErrRunInProgress = errors.New("scheduled run in progress")

// a STARTED claim older than this belongs to a worker that died mid-run
const claimStaleAfter = 5 * time.Minute

// RunClaim is a worker's hold on one scheduled run message, stored as an IdempotencyKey row
// unique per (tenant, handler, message).
type RunClaim struct {
	db  *gorm.DB
	key models.IdempotencyKey
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.Is(err, gorm.ErrDuplicatedKey) || (errors.As(err, &mysqlErr) && mysqlErr.Number == 1062)
}

// ClaimRun marks the message STARTED. done is true when it already SUCCEEDED and must not run
// again. FAILED and stale STARTED claims are taken over.
func ClaimRun(db *gorm.DB, tenantId, handler, messageId string) (claim *RunClaim, done bool, err error) {
	claim = &RunClaim{db: db, key: models.IdempotencyKey{
		TenantId:    tenantId,
		HandlerName: handler,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}}
	err = db.Create(&claim.key).Error
	if err == nil {
		return claim, false, nil
	}
	if !isDuplicateKeyErr(err) {
		return nil, false, err
	}

	var existing models.IdempotencyKey
	if err := claim.scope().First(&existing).Error; err != nil {
		return nil, false, err
	}
	switch {
	case existing.Status == models.IdempotencyStatusSucceeded:
		return nil, true, nil
	case existing.Status == models.IdempotencyStatusStarted && time.Since(existing.UpdatedAt) < claimStaleAfter:
		return nil, false, ErrRunInProgress
	}
	// compare-and-set on the status we read so two takeovers cannot both win
	res := db.Model(&models.IdempotencyKey{}).
		Where("id = ? AND status = ?", existing.ID, existing.Status).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, ErrRunInProgress
	}
	return claim, false, nil
}

func (c *RunClaim) scope() *gorm.DB {
	return c.db.Model(&models.IdempotencyKey{}).
		Where("tenant_id = ? AND handler_name = ? AND message_id = ?", c.key.TenantId, c.key.HandlerName, c.key.MessageId)
}

func (c *RunClaim) Succeed() error {
	return c.scope().Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

// Fail records runErr so a redelivery can take the claim over.
func (c *RunClaim) Fail(runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return c.scope().Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
