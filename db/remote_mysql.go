package db

import (
	"context"
	"fmt"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

// mysqlPrivileges is what a site user may do on its own database.
const mysqlPrivileges = "SELECT, INSERT, UPDATE, DELETE, CREATE, DROP, INDEX, ALTER, LOCK TABLES, CREATE TEMPORARY TABLES"

// DumpSettings locate the database dumped by mysqldump.
type DumpSettings struct {
	Host string
	User string
	Pass string
	Name string
}

// MySQLRemote runs the mysql client as root on a server. The root user must
// be able to log in without a password.
type MySQLRemote struct {
	exec executor.Executor
}

func NewMySQLRemote(e executor.Executor) *MySQLRemote {
	return &MySQLRemote{exec: e}
}

// Command returns the mysql line for sql without running it.
func (m *MySQLRemote) Command(sql string) string {
	return "mysql -u root -e " + executor.Quote(sql)
}

func (m *MySQLRemote) run(ctx context.Context, sql string) error {
	_, err := m.exec.Run(ctx, executor.Command{Line: m.Command(sql)})
	return err
}

func (m *MySQLRemote) UserCreate(ctx context.Context, user, password string) error {
	if err := ValidateIdentifier(user); err != nil {
		return err
	}
	common.Logger.Infof("create mysql user: %s", user)
	return m.run(ctx, fmt.Sprintf("CREATE USER '%s'@'localhost' IDENTIFIED BY %s;", user, mysqlLiteral(password)))
}

func (m *MySQLRemote) DatabaseCreate(ctx context.Context, name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	common.Logger.Infof("create mysql database: %s", name)
	return m.run(ctx, fmt.Sprintf("CREATE DATABASE %s;", name))
}

// Grant gives user the site privileges on database name.
func (m *MySQLRemote) Grant(ctx context.Context, name, user, password string) error {
	if err := validateIdentifiers(name, user); err != nil {
		return err
	}
	return m.run(ctx, fmt.Sprintf(
		"GRANT %s ON `%s`.* TO '%s'@'localhost' IDENTIFIED BY %s;",
		mysqlPrivileges, name, user, mysqlLiteral(password),
	))
}

func (m *MySQLRemote) DropDatabase(ctx context.Context, name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	common.Logger.Warnf("drop mysql database: %s", name)
	return m.run(ctx, fmt.Sprintf("DROP DATABASE %s;", name))
}

func (m *MySQLRemote) DropUser(ctx context.Context, user string) error {
	if err := ValidateIdentifier(user); err != nil {
		return err
	}
	common.Logger.Warnf("drop mysql user: %s", user)
	return m.run(ctx, fmt.Sprintf("DROP USER '%s'@'localhost';", user))
}

// Dump writes the database described by settings to file on the server.
func (m *MySQLRemote) Dump(ctx context.Context, settings DumpSettings, file string) error {
	if err := ValidateIdentifier(settings.Name); err != nil {
		return err
	}
	line := fmt.Sprintf("mysqldump --host=%s --user=%s --password=%s %s > %s",
		executor.Quote(settings.Host),
		executor.Quote(settings.User),
		executor.Quote(settings.Pass),
		settings.Name,
		executor.QuotePath(file),
	)
	_, err := m.exec.Run(ctx, executor.Command{Line: line})
	return err
}
