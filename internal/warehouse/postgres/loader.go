// Package postgres bulk-loads contracts into Postgres with COPY.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
)

// Driver is the profile driver name handled by this package.
const Driver = "postgres"

type copyCloser interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close(ctx context.Context) error
}

// Loader appends rows over a single connection.
type Loader struct {
	conn copyCloser
}

// Open connects using the profile DSN, or host/port/user/password when the DSN
// is empty. target.Database overrides the DSN database and target.Warehouse is
// sent as application_name.
func Open(ctx context.Context, profile warehouse.Profile, target warehouse.Target) (warehouse.Loader, error) {
	dsn := profile.DSN
	if dsn == "" {
		dsn = keywordDSN(profile)
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if target.Database != "" {
		cfg.Database = strings.ToLower(target.Database)
	}
	if target.Warehouse != "" {
		cfg.RuntimeParams["application_name"] = target.Warehouse
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Loader{conn: conn}, nil
}

// NewLoaderWithConn wraps an existing connection (primarily for testing).
func NewLoaderWithConn(conn copyCloser) (*Loader, error) {
	if conn == nil {
		return nil, fmt.Errorf("conn is required")
	}
	return &Loader{conn: conn}, nil
}

func keywordDSN(p warehouse.Profile) string {
	var parts []string
	quote := strings.NewReplacer(`\`, `\\`, "'", `\'`)
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s='%s'", k, quote.Replace(v)))
		}
	}
	add("host", p.Host)
	if p.Port > 0 {
		add("port", fmt.Sprint(p.Port))
	}
	add("user", p.User)
	add("password", p.Password)
	return strings.Join(parts, " ")
}

// Identifier returns the COPY destination. Unquoted Postgres identifiers fold
// to lower case, so the target is lowered to match tables created without quotes.
func Identifier(target warehouse.Target) pgx.Identifier {
	if target.Schema == "" {
		return pgx.Identifier{strings.ToLower(target.Table)}
	}
	return pgx.Identifier{strings.ToLower(target.Schema), strings.ToLower(target.Table)}
}

// Columns returns the lower-cased column list.
func Columns() []string {
	cols := make([]string, len(award.Columns))
	for i, c := range award.Columns {
		cols[i] = strings.ToLower(c)
	}
	return cols
}

// Load appends table to target with COPY FROM.
func (l *Loader) Load(ctx context.Context, target warehouse.Target, table award.Table) (int64, error) {
	if l == nil || l.conn == nil {
		return 0, fmt.Errorf("postgres loader is not connected")
	}
	if table.Len() == 0 {
		return 0, nil
	}
	src := pgx.CopyFromSlice(table.Len(), func(i int) ([]any, error) {
		return rowValues(table.Rows[i]), nil
	})
	n, err := l.conn.CopyFrom(ctx, Identifier(target), Columns(), src)
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", target, err)
	}
	return n, nil
}

// Close closes the connection.
func (l *Loader) Close() error {
	if l == nil || l.conn == nil {
		return nil
	}
	return l.conn.Close(context.Background())
}

func rowValues(c award.Contract) []any {
	values := c.Values()
	values[4] = numeric(c.AwardAmount)
	return values
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
