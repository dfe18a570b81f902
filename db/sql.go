// Package db creates, drops, dumps and restores site databases.
//
// Databases on a server are managed by running the psql and mysql clients
// over the remote executor. Databases on the workstation, used to restore
// backups for testing, are reached through gorm (PostgreSQL) and
// database/sql with the MySQL driver.
package db

import (
	"regexp"
	"strings"

	"deploy.evalgo.org/common"
)

const maxIdentifier = 63

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks a database, role or table space name before it
// is written into SQL.
func ValidateIdentifier(name string) error {
	if len(name) > maxIdentifier {
		return common.NewTaskError("identifier is longer than %d characters: %s", maxIdentifier, name)
	}
	if !identifier.MatchString(name) {
		return common.NewTaskError("invalid identifier: '%s'", name)
	}
	return nil
}

func validateIdentifiers(names ...string) error {
	for _, name := range names {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// Literal quotes s as an SQL string literal.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// mysqlLiteral also escapes backslashes, which MySQL treats as escapes
// inside string literals.
func mysqlLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return Literal(s)
}
