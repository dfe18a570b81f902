package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// LocalMySQL checks the MySQL server on the workstation.
type LocalMySQL struct {
	db *sql.DB
}

// MySQLDSN builds a DSN for a TCP connection without a default database.
func MySQLDSN(user, password, addr string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN()
}

// OpenLocalMySQL connects and pings the server.
func OpenLocalMySQL(ctx context.Context, user, password, addr string) (*LocalMySQL, error) {
	sqlDB, err := sql.Open("mysql", MySQLDSN(user, password, addr))
	if err != nil {
		return nil, fmt.Errorf("failed to open local mysql: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to local mysql at %s: %w", addr, err)
	}
	return &LocalMySQL{db: sqlDB}, nil
}

func (l *LocalMySQL) Close() error {
	return l.db.Close()
}

func (l *LocalMySQL) count(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *LocalMySQL) DatabaseExists(ctx context.Context, name string) (bool, error) {
	return l.count(ctx, "SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", name)
}

func (l *LocalMySQL) UserExists(ctx context.Context, user string) (bool, error) {
	return l.count(ctx, "SELECT COUNT(*) FROM mysql.user WHERE user = ?", user)
}
