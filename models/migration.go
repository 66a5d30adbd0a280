package models

import (
	"log"

	"github.com/mmdatafocus/payroll_bridge/config"
)

// AllModels lists every table the service owns, in creation order.
func AllModels() []interface{} {
	return []interface{}{
		&Employee{}, &Contribution{}, &Election{}, &Loan{}, &SystemLedgerEntry{},
		&DuplicateFinding{},
		&ReconciliationReport{}, &ReconciliationItem{},
		&History{},
		&IdempotencyKey{},
	}
}

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(AllModels()...)
	if err != nil {
		log.Fatal(err)
	}
}
