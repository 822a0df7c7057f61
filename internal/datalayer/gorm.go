package datalayer

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormDataLayer is a backend over a postgres connection pool.
type GormDataLayer struct {
	DB *gorm.DB
}

func (g *GormDataLayer) Name() string { return "postgres" }

func (g *GormDataLayer) Close() error {
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)
}

func configureConnectionPool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}

// NewGormFactory returns a Factory that opens dsn on first resolution.
func NewGormFactory(dsn string) Factory {
	return func() (DataLayer, error) {
		return openGorm(postgres.Open(dsn))
	}
}

func openGorm(dialector gorm.Dialector) (DataLayer, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := configureConnectionPool(db); err != nil {
		return nil, fmt.Errorf("configure pool: %w", err)
	}
	return &GormDataLayer{DB: db}, nil
}
