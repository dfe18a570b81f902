package db

import (
	"context"
	"fmt"
	"strings"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

// PostgresRemote runs psql as the postgres user on a server. When Host is
// set the database server is reached over the network with Password,
// otherwise the local socket is used.
type PostgresRemote struct {
	exec     executor.Executor
	host     string
	password string
}

// NewPostgresRemote creates a psql runner. host is the postgres listen
// address, empty for localhost.
func NewPostgresRemote(e executor.Executor, host, password string) *PostgresRemote {
	return &PostgresRemote{exec: e, host: host, password: password}
}

func (p *PostgresRemote) connection() string {
	if p.host == "" {
		return "-U postgres"
	}
	return "-U postgres -h " + executor.Quote(p.host)
}

func (p *PostgresRemote) env() map[string]string {
	if p.host == "" {
		return nil
	}
	return map[string]string{"PGPASSWORD": p.password}
}

// Command returns the psql line for sql without running it.
func (p *PostgresRemote) Command(sql string) string {
	return fmt.Sprintf("psql -X %s -c %s", p.connection(), executor.Quote(sql))
}

func (p *PostgresRemote) run(ctx context.Context, sql string) (*executor.Result, error) {
	return p.exec.Run(ctx, executor.Command{Line: p.Command(sql), Env: p.env()})
}

// query runs sql with unaligned, tuples only output.
func (p *PostgresRemote) query(ctx context.Context, sql string) (string, error) {
	line := fmt.Sprintf("psql -X %s -t -A -c %s", p.connection(), executor.Quote(sql))
	result, err := p.exec.Run(ctx, executor.Command{Line: line, Env: p.env()})
	if err != nil {
		return "", err
	}
	return result.Trimmed(), nil
}

func (p *PostgresRemote) exists(ctx context.Context, sql string) (bool, error) {
	out, err := p.query(ctx, sql)
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

func (p *PostgresRemote) UserExists(ctx context.Context, user string) (bool, error) {
	return p.exists(ctx, "SELECT 1 FROM pg_roles WHERE rolname="+Literal(user))
}

// UserCreate creates a login role which may create databases.
func (p *PostgresRemote) UserCreate(ctx context.Context, user, password string) error {
	if err := ValidateIdentifier(user); err != nil {
		return err
	}
	common.Logger.Infof("create postgres user: %s", user)
	_, err := p.run(ctx, fmt.Sprintf(
		"CREATE ROLE %s WITH PASSWORD %s NOSUPERUSER CREATEDB NOCREATEROLE LOGIN;", user, Literal(password),
	))
	return err
}

func (p *PostgresRemote) DatabaseExists(ctx context.Context, name string) (bool, error) {
	return p.exists(ctx, "SELECT 1 FROM pg_database WHERE datname="+Literal(name))
}

// DatabaseCreate creates a utf-8 database owned by owner, optionally in a
// table space (e.g. a block storage volume).
func (p *PostgresRemote) DatabaseCreate(ctx context.Context, name, owner, tableSpace string) error {
	if err := validateIdentifiers(name, owner); err != nil {
		return err
	}
	sql := fmt.Sprintf("CREATE DATABASE %s TEMPLATE=template0 ENCODING='utf-8' OWNER=%s", name, owner)
	if tableSpace != "" {
		if err := ValidateIdentifier(tableSpace); err != nil {
			return err
		}
		sql += " TABLESPACE=" + tableSpace
	}
	common.Logger.Infof("create postgres database: %s", name)
	_, err := p.run(ctx, sql+";")
	return err
}

func (p *PostgresRemote) DropDatabase(ctx context.Context, name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	common.Logger.Warnf("drop postgres database: %s", name)
	_, err := p.run(ctx, fmt.Sprintf("DROP DATABASE %s;", name))
	return err
}

func (p *PostgresRemote) DropUser(ctx context.Context, user string) error {
	if err := ValidateIdentifier(user); err != nil {
		return err
	}
	common.Logger.Warnf("drop postgres user: %s", user)
	_, err := p.run(ctx, fmt.Sprintf("DROP ROLE %s;", user))
	return err
}

// Dump writes the database to file on the server with pg_dump.
func (p *PostgresRemote) Dump(ctx context.Context, name, file string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	line := strings.Join([]string{"pg_dump", p.connection(), name, "-f", executor.QuotePath(file)}, " ")
	_, err := p.exec.Run(ctx, executor.Command{Line: line, Env: p.env()})
	return err
}
