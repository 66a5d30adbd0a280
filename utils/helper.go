package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/sirupsen/logrus"
)

func GenerateUniqueFilename() string {
	timestamp := time.Now().UnixNano()
	random := rand.Intn(1000)
	return fmt.Sprintf("%d_%d", timestamp, random)
}

func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(defaults) > 0 {
		return defaults[0]
	}
	return zero
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, ValidationError("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// TenantLock tries to take a short-lived Redis lock. It never fails the caller: a nil lock
// means Redis is unavailable or someone else holds the key, and callers fall back on the
// database constraints. release is always safe to call.
func TenantLock(ctx context.Context, lockType string, key string, ttl time.Duration, moduleName string, functionName string) (held bool, release func()) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	noop := func() {}
	if locker == nil {
		logger.WithFields(logrus.Fields{
			"field": functionName,
			"key":   key,
		}).Debug("redis lock not ready; proceeding without redis lock")
		return false, noop
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("%s:%s", lockType, key), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.WithFields(logrus.Fields{
			"field":  functionName,
			"module": moduleName,
			"key":    key,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return false, noop
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining redis lock", key, err)
		return false, noop
	}
	return true, func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "Releasing redis lock", key, releaseErr)
		}
	}
}
