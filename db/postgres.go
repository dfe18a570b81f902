package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

// LocalPostgres manages the PostgreSQL server on the workstation. Catalog
// queries and DDL go through gorm; dumps are loaded with the psql client
// run by exec.
type LocalPostgres struct {
	db   *gorm.DB
	exec executor.Executor
}

// OpenLocalPostgres connects to dsn, e.g.
// "host=localhost user=postgres dbname=postgres sslmode=disable".
func OpenLocalPostgres(dsn string, e executor.Executor) (*LocalPostgres, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to local postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return NewLocalPostgres(gdb, e), nil
}

func NewLocalPostgres(gdb *gorm.DB, e executor.Executor) *LocalPostgres {
	return &LocalPostgres{db: gdb, exec: e}
}

func (l *LocalPostgres) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *LocalPostgres) count(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := l.db.WithContext(ctx).Raw(query, args...).Scan(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *LocalPostgres) DatabaseExists(ctx context.Context, name string) (bool, error) {
	return l.count(ctx, "SELECT count(*) FROM pg_database WHERE datname = ?", name)
}

func (l *LocalPostgres) UserExists(ctx context.Context, user string) (bool, error) {
	return l.count(ctx, "SELECT count(*) FROM pg_user WHERE usename = ?", user)
}

func (l *LocalPostgres) execSQL(ctx context.Context, sql string) error {
	return l.db.WithContext(ctx).Exec(sql).Error
}

func (l *LocalPostgres) CreateDatabase(ctx context.Context, name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	return l.execSQL(ctx, fmt.Sprintf("CREATE DATABASE %s TEMPLATE=template0 ENCODING='utf-8'", name))
}

func (l *LocalPostgres) DropDatabase(ctx context.Context, name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	return l.execSQL(ctx, fmt.Sprintf("DROP DATABASE %s", name))
}

func (l *LocalPostgres) CreateUser(ctx context.Context, user, password string) error {
	if err := ValidateIdentifier(user); err != nil {
		return err
	}
	return l.execSQL(ctx, fmt.Sprintf(
		"CREATE ROLE %s WITH PASSWORD %s NOSUPERUSER CREATEDB NOCREATEROLE LOGIN", user, Literal(password),
	))
}

// RestoreOptions describe a dump loaded into a fresh local database.
type RestoreOptions struct {
	// Database is dropped first when it exists
	Database string

	// File is the plain SQL dump
	File string

	// Owner is the role owning the objects in the dump, created when missing
	Owner string

	// OwnerPassword is used when Owner has to be created
	OwnerPassword string

	// ReassignTo takes over the objects of Owner after the load
	ReassignTo string
}

// Restore recreates the database and loads the dump with psql, stopping on
// the first error.
func (l *LocalPostgres) Restore(ctx context.Context, opts RestoreOptions) error {
	if err := validateIdentifiers(opts.Database, opts.Owner); err != nil {
		return err
	}
	log := common.Logger.WithField("database", opts.Database)
	exists, err := l.DatabaseExists(ctx, opts.Database)
	if err != nil {
		return err
	}
	if exists {
		log.Info("drop existing database")
		if err := l.DropDatabase(ctx, opts.Database); err != nil {
			return err
		}
	}
	if err := l.CreateDatabase(ctx, opts.Database); err != nil {
		return err
	}
	userExists, err := l.UserExists(ctx, opts.Owner)
	if err != nil {
		return err
	}
	if !userExists {
		if err := l.CreateUser(ctx, opts.Owner, opts.OwnerPassword); err != nil {
			return err
		}
	}
	load := fmt.Sprintf("psql -X --set ON_ERROR_STOP=on -U postgres -d %s --file %s",
		opts.Database, executor.Quote(opts.File))
	if _, err := l.exec.Run(ctx, executor.Command{Line: load}); err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.File, err)
	}
	if opts.ReassignTo != "" {
		if err := ValidateIdentifier(opts.ReassignTo); err != nil {
			return err
		}
		reassign := fmt.Sprintf("psql -X -U postgres -d %s -c %s", opts.Database,
			executor.Quote(fmt.Sprintf("REASSIGN OWNED BY %s TO %s", opts.Owner, opts.ReassignTo)))
		if _, err := l.exec.Run(ctx, executor.Command{Line: reassign}); err != nil {
			return err
		}
	}
	log.Infof("restored: psql %s", opts.Database)
	return nil
}
