// Package clickhouse bulk-loads contracts into ClickHouse using native batches.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
)

// Driver is the profile driver name handled by this package.
const Driver = "clickhouse"

const defaultPort = 9000

type batch interface {
	Append(v ...any) error
	Abort() error
	Send() error
}

type batchConn interface {
	PrepareBatch(ctx context.Context, query string) (batch, error)
	Close() error
}

// Loader appends rows with one batch per load.
type Loader struct {
	conn batchConn
}

type nativeConn struct {
	conn driver.Conn
}

func (c nativeConn) PrepareBatch(ctx context.Context, query string) (batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

func (c nativeConn) Close() error {
	return c.conn.Close()
}

// Open connects to the profile's DSN or host/port. The database is
// target.Database, falling back to target.Schema.
func Open(ctx context.Context, profile warehouse.Profile, target warehouse.Target) (warehouse.Loader, error) {
	opts, err := options(profile, target)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Loader{conn: nativeConn{conn: conn}}, nil
}

func options(profile warehouse.Profile, target warehouse.Target) (*clickhouse.Options, error) {
	var opts *clickhouse.Options
	if profile.DSN != "" {
		parsed, err := clickhouse.ParseDSN(profile.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
		}
		opts = parsed
	} else {
		if profile.Host == "" {
			return nil, fmt.Errorf("profile %q: host or dsn is required", profile.Name)
		}
		port := profile.Port
		if port == 0 {
			port = defaultPort
		}
		opts = &clickhouse.Options{
			Addr: []string{fmt.Sprintf("%s:%d", profile.Host, port)},
			Auth: clickhouse.Auth{
				Username: profile.User,
				Password: profile.Password,
			},
		}
	}
	if db := database(target); db != "" {
		opts.Auth.Database = db
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Compression == nil {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}
	return opts, nil
}

func database(target warehouse.Target) string {
	if target.Database != "" {
		return target.Database
	}
	return target.Schema
}

// NewLoaderWithConn wraps an existing connection (primarily for testing).
func NewLoaderWithConn(conn batchConn) (*Loader, error) {
	if conn == nil {
		return nil, fmt.Errorf("conn is required")
	}
	return &Loader{conn: conn}, nil
}

// InsertQuery returns the batch statement for target.
func InsertQuery(target warehouse.Target) string {
	name := target.Table
	if db := database(target); db != "" {
		name = db + "." + target.Table
	}
	return fmt.Sprintf("INSERT INTO %s (%s)", name, strings.Join(award.Columns, ", "))
}

// Load appends table to target in a single batch.
func (l *Loader) Load(ctx context.Context, target warehouse.Target, table award.Table) (int64, error) {
	if l == nil || l.conn == nil {
		return 0, fmt.Errorf("clickhouse loader is not connected")
	}
	if table.Len() == 0 {
		return 0, nil
	}
	b, err := l.conn.PrepareBatch(ctx, InsertQuery(target))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}
	for i, row := range table.Rows {
		if err := b.Append(row.Values()...); err != nil {
			_ = b.Abort()
			return 0, fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	if err := b.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch to %s: %w", target, err)
	}
	return int64(table.Len()), nil
}

// Close closes the connection.
func (l *Loader) Close() error {
	if l == nil || l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
