// internal/sqlgateway/dialect.go
package sqlgateway

import (
	"fmt"
	"strings"

	"github.com/askdba/dbquery-skill/internal/util"
)

// Dialect holds the driver-specific statements the gateway issues itself.
type Dialect struct {
	Name       string
	DriverName string
	Quote      byte
	// ListTables returns one table name per row.
	ListTables string
	// DescribeColumns takes the table name as its only argument.
	DescribeColumns string
	ExplainPrefix   string
}

var (
	mysqlDialect = Dialect{
		Name:       "mysql",
		DriverName: "mysql",
		Quote:      '`',
		ListTables: "SHOW TABLES",
		DescribeColumns: "SELECT column_name AS name, column_type AS type, is_nullable AS nullable, " +
			"column_key AS `key`, column_default AS `default`, extra " +
			"FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? " +
			"ORDER BY ordinal_position",
		ExplainPrefix: "EXPLAIN ",
	}

	postgresDialect = Dialect{
		Name:       "postgres",
		DriverName: "pgx",
		Quote:      '"',
		ListTables: "SELECT table_name FROM information_schema.tables " +
			"WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name",
		DescribeColumns: "SELECT column_name AS name, data_type AS type, is_nullable AS nullable, " +
			"column_default AS \"default\" FROM information_schema.columns " +
			"WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position",
		ExplainPrefix: "EXPLAIN ",
	}

	sqliteDialect = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite",
		Quote:      '"',
		ListTables: "SELECT name FROM sqlite_master WHERE type = 'table' " +
			"AND name NOT LIKE 'sqlite_%' ORDER BY name",
		DescribeColumns: "SELECT name, type, CASE \"notnull\" WHEN 0 THEN 'YES' ELSE 'NO' END AS nullable, " +
			"dflt_value AS \"default\", pk FROM pragma_table_info(?) ORDER BY cid",
		ExplainPrefix: "EXPLAIN QUERY PLAN ",
	}
)

// DialectFor maps a configured driver name onto a dialect. Empty means mysql.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql":
		return mysqlDialect, nil
	case "pgx", "postgres", "postgresql":
		return postgresDialect, nil
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q (want mysql, postgres or sqlite)", driver)
	}
}

// ExplainSQL prefixes sqlText with the dialect's EXPLAIN form unless it
// already is an EXPLAIN.
func (d Dialect) ExplainSQL(sqlText string) string {
	sqlText = strings.TrimSpace(sqlText)
	if res := util.ClassifySQL(sqlText); res.LeadingKeyword == "EXPLAIN" {
		return sqlText
	}
	return d.ExplainPrefix + strings.TrimRight(sqlText, "; ")
}
