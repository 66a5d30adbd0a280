package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func init() {
	// a missing .env is fine; the process env wins either way
	_ = godotenv.Load()
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// backoff is 2s, 4s, 8s ... capped at 30s.
func backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	d := time.Second << attempt
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// connectWithRetry calls dial until it succeeds. Dependencies are connected after the server
// listens, so waiting here never blocks the startup check.
func connectWithRetry(dependency string, fields logrus.Fields, dial func() error) {
	for attempt := 1; ; attempt++ {
		err := dial()
		entry := GetLogger().WithFields(fields).WithFields(logrus.Fields{"dependency": dependency, "attempt": attempt})
		if err == nil {
			entry.Info("connected")
			return
		}
		wait := backoff(attempt)
		entry.WithField("retry_in", wait.String()).Error("connect failed: " + err.Error())
		time.Sleep(wait)
	}
}
