package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("storage: not found")

type Store struct {
	open   gorm.Dialector
	db     *gorm.DB
	logger logger.Interface
}

// New prepares a store for the given driver. Supported types are sqlite,
// mysql and postgres. The connection is opened by Start.
func New(dbType, dbConn string, debug bool) (*Store, error) {
	var open gorm.Dialector
	switch strings.ToLower(dbType) {
	case "postgres", "postgresql":
		open = postgres.Open(dbConn)
	case "mysql":
		open = mysql.Open(dbConn)
	case "sqlite", "sqlite3":
		if dbConn == "" {
			return nil, errors.New("storage: sqlite needs a database path")
		}
		open = sqlite.Open(sqliteDSN(dbConn))
	default:
		return nil, fmt.Errorf("storage: unknown db type: %s", dbType)
	}
	l := logger.Default.LogMode(logger.Silent)
	if debug {
		l = logger.Default.LogMode(logger.Warn)
	}
	return &Store{
		open:   open,
		logger: l,
	}, nil
}

// sqliteDSN waits on locked databases instead of failing, several kiosk
// requests may write at once.
func sqliteDSN(conn string) string {
	if strings.Contains(conn, "_pragma=busy_timeout") {
		return conn
	}
	sep := "?"
	if strings.Contains(conn, "?") {
		sep = "&"
	}
	return conn + sep + "_pragma=busy_timeout(5000)"
}

// Start opens the connection and checks it is alive. It gives up after 30
// seconds.
func (s *Store) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	errC := make(chan error, 1)
	go func() {
		db, err := gorm.Open(s.open, &gorm.Config{
			Logger: s.logger,
		})
		if err != nil {
			errC <- fmt.Errorf("storage: failed to open database: %w", err)
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			errC <- fmt.Errorf("storage: couldn't get sql db: %w", err)
			return
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			errC <- fmt.Errorf("storage: couldn't ping database: %w", err)
			return
		}
		s.db = db
		errC <- nil
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("storage: timed out opening database: %w", ctx.Err())
		}
		return ctx.Err()
	case err := <-errC:
		return err
	}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("storage: couldn't get sql db: %w", err)
	}
	return sqlDB.Close()
}

// Migrate applies the versioned migrations and then auto migrates the
// models.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return errors.New("storage: not started")
	}
	db := s.db.WithContext(ctx)
	fresh := !db.Migrator().HasTable(&Survey{})
	if err := s.customMigrate(db, fresh); err != nil {
		return err
	}
	if err := db.AutoMigrate(&Survey{}, &Task{}); err != nil {
		return fmt.Errorf("storage: failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) customMigrate(db *gorm.DB, fresh bool) error {
	if !db.Migrator().HasTable(&Migration{}) {
		if err := db.Migrator().CreateTable(&Migration{}); err != nil {
			return fmt.Errorf("storage: failed to create table migrations: %w", err)
		}
		// A fresh database gets the latest schema from AutoMigrate.
		var version int
		if fresh {
			version = len(migrations)
		}
		if err := db.Create(&Migration{ID: ulid.Make().String(), Version: version}).Error; err != nil {
			return fmt.Errorf("storage: failed to save migration version: %w", err)
		}
		if fresh {
			return nil
		}
	}

	var current Migration
	if err := db.First(&current).Error; err != nil {
		return fmt.Errorf("storage: failed to get migration version: %w", err)
	}
	if current.Version >= len(migrations) {
		return nil
	}
	version, err := runMigrations(db, current.Version)
	if version != current.Version {
		current.Version = version
		if serr := db.Save(&current).Error; serr != nil {
			return fmt.Errorf("storage: failed to save migration version: %w", serr)
		}
	}
	return err
}

type Filter struct {
	Query interface{}
	Args  []interface{}
}

func Where(query interface{}, args ...interface{}) Filter {
	return Filter{
		Query: query,
		Args:  args,
	}
}
