package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the postgres handle shared by the match repository and the artifact store.
type DB struct {
	*gorm.DB
}

// Options configures the pool, sized for one batch writer plus a reader per
// feature worker.
type Options struct {
	URL           string
	Development   bool
	Workers       int
	SlowThreshold time.Duration
}

// pool sizes derived from the worker count.
type pool struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

func (o Options) pool() pool {
	workers := o.Workers
	if workers < 1 {
		workers = 1
	}
	return pool{
		maxOpen:     workers + 1,
		maxIdle:     1,
		maxLifetime: 30 * time.Minute,
		maxIdleTime: 5 * time.Minute,
	}
}

func (o Options) logLevel() logger.LogLevel {
	if o.Development {
		return logger.Warn
	}
	return logger.Error
}

// Open connects to postgres and verifies the connection.
func Open(opts Options) (*DB, error) {
	slow := opts.SlowThreshold
	if slow <= 0 {
		slow = time.Second
	}
	gormLog := logger.New(logrus.StandardLogger(), logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  opts.logLevel(),
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(opts.URL), &gorm.Config{
		Logger: gormLog,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	p := opts.pool()
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxLifetime(p.maxLifetime)
	sqlDB.SetConnMaxIdleTime(p.maxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns": p.maxOpen,
		"max_idle_conns": p.maxIdle,
		"slow_threshold": slow,
	}).Info("Database connection established")
	return &DB{db}, nil
}

// Table is a gorm model with an explicit table name.
type Table interface {
	TableName() string
}

// Migrate creates or updates each table in order.
func (db *DB) Migrate(tables ...Table) error {
	for _, t := range tables {
		if err := db.AutoMigrate(t); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", t.TableName(), err)
		}
		logrus.WithField("table", t.TableName()).Info("Table migrated")
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings postgres with a short deadline.
func (db *DB) HealthCheck() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
