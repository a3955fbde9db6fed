package sqlstore

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name   string
	Random string
	// Upsert renders the conflict clause appended to an INSERT.
	Upsert func(keys, cols []string) string
}

var (
	SQLite = Dialect{
		Name:   "sqlite",
		Random: "RANDOM()",
		Upsert: func(keys, cols []string) string {
			sets := make([]string, 0, len(cols))
			for _, c := range cols {
				sets = append(sets, c+" = excluded."+c)
			}
			return " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
		},
	}
	MySQL = Dialect{
		Name:   "mysql",
		Random: "RAND()",
		Upsert: func(_, cols []string) string {
			sets := make([]string, 0, len(cols))
			for _, c := range cols {
				sets = append(sets, c+" = VALUES("+c+")")
			}
			return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
		},
	}
)

// DialectFor maps a store.driver config value onto its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case SQLite.Name:
		return SQLite, nil
	case MySQL.Name:
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

func (d Dialect) schema() (string, error) {
	raw, err := schemaFS.ReadFile("schema/" + d.Name + ".sql")
	if err != nil {
		return "", fmt.Errorf("read %s schema: %w", d.Name, err)
	}
	return string(raw), nil
}

// Open connects with the driver matching the dialect.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	switch dialect.Name {
	case SQLite.Name:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// sqlite serialises writers; one connection avoids SQLITE_BUSY and keeps :memory: coherent
		db.SetMaxOpenConns(1)
		return db, nil
	case MySQL.Name:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.MultiStatements = true
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("mysql connector: %w", err)
		}
		return sql.OpenDB(connector), nil
	}
	return nil, fmt.Errorf("unsupported sql driver %q", dialect.Name)
}
