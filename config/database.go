package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var db *gorm.DB

func GetDB() *gorm.DB {
	return db
}

// SetDB installs an already opened connection. Tests and CLIs use it with their own dialector.
func SetDB(conn *gorm.DB) {
	db = conn
}

// mysqlDSN builds the ledger database DSN from DB_* env. DB_HOST=/cloudsql/<instance> dials
// the Cloud SQL proxy socket.
func mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = os.Getenv("DB_USER")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	host := os.Getenv("DB_HOST")
	if strings.HasPrefix(host, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = host
	} else {
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%s", host, envOr("DB_PORT", "3306"))
	}
	return cfg.FormatDSN()
}

// ConnectDatabaseWithRetry blocks until MySQL answers, then installs the connection.
// Call it from main() after the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	connectWithRetry("mysql", logrus.Fields{"db_host": os.Getenv("DB_HOST"), "db_name": os.Getenv("DB_NAME")}, func() error {
		conn, err := gorm.Open(gormmysql.Open(mysqlDSN()), GormConfig())
		if err != nil {
			return err
		}
		if err := tunePool(conn); err != nil {
			return err
		}
		InstallPlugins(conn)
		db = conn
		return nil
	})
}

// tunePool applies DB_MAX_OPEN_CONNS (50), DB_MAX_IDLE_CONNS (25),
// DB_CONN_MAX_LIFETIME_SECONDS (300) and DB_CONN_MAX_IDLE_TIME_SECONDS (60).
func tunePool(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if n := intFromEnv("DB_MAX_OPEN_CONNS", 50); n > 0 {
		sqlDB.SetMaxOpenConns(n)
	}
	if n := intFromEnv("DB_MAX_IDLE_CONNS", 25); n >= 0 {
		sqlDB.SetMaxIdleConns(n)
	}
	if s := intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300); s > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(s) * time.Second)
	}
	if s := intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60); s > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(s) * time.Second)
	}
	return nil
}

// InstallPlugins registers tracing and tenant scoping on conn.
func InstallPlugins(conn *gorm.DB) {
	for _, plugin := range []gorm.Plugin{otelgorm.NewPlugin(), NewTenantGuardPlugin()} {
		if err := conn.Use(plugin); err != nil {
			GetLogger().WithField("plugin", plugin.Name()).Error("install gorm plugin: " + err.Error())
		}
	}
}

// GormConfig is the gorm configuration shared by every dialector. Duplicate-key errors surface
// as gorm.ErrDuplicatedKey on MySQL and sqlite alike.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				SlowThreshold:             time.Second,
				IgnoreRecordNotFoundError: true,
			},
		),
		NamingStrategy: schema.NamingStrategy{},
		TranslateError: true,
	}
}
