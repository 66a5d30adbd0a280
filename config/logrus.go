package config

import (
	"context"
	"os"
	"strings"

	"github.com/mmdatafocus/payroll_bridge/appctx"
	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

// runs after env.go's init, so .env values apply
func init() {
	logg = newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func GetLogger() *logrus.Logger {
	return logg
}

// newLogger builds the process logger. level is debug|info|warn|error (default error) and
// format is json (default) or text.
func newLogger(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	l.SetLevel(logrus.ErrorLevel)
	if parsed, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil && level != "" {
		l.SetLevel(parsed)
	}
	return l
}

// OperationFields tags a log line with the operation plus the tenant and correlation id in ctx.
func OperationFields(ctx context.Context, operation string, extra logrus.Fields) logrus.Fields {
	fields := logrus.Fields{"field": operation}
	if tenantId, _ := appctx.TenantScope(ctx); tenantId != "" {
		fields["tenant_id"] = tenantId
	}
	if cid, ok := appctx.String(ctx, appctx.CorrelationId); ok && cid != "" {
		fields["correlation_id"] = cid
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
