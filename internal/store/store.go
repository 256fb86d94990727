// Package store materializes a tabular dataset into an ephemeral in-memory
// SQL database so compiled queries can run against it. Every Open returns an
// isolated database; nothing is shared between runs or retries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// TableName is the well-known name the dataset is materialized under
const TableName = "data"

// Engine selects the embedded SQL engine
type Engine string

const (
	// EngineSQLite is the default engine
	EngineSQLite Engine = "sqlite"
	// EngineDuckDB is the columnar alternative
	EngineDuckDB Engine = "duckdb"
)

// ParseEngine maps a config value to an Engine; empty means sqlite
func ParseEngine(name string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(name))) {
	case "", EngineSQLite:
		return EngineSQLite, nil
	case EngineDuckDB:
		return EngineDuckDB, nil
	default:
		return "", fmt.Errorf("unknown store engine %q", name)
	}
}

// Store is one isolated in-memory database
type Store struct {
	db     *sql.DB
	engine Engine
}

// Open creates a fresh in-memory database for the engine
func Open(ctx context.Context, engine Engine) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch engine {
	case EngineSQLite, "":
		engine = EngineSQLite
		db, err = sql.Open("sqlite3", ":memory:")
	case EngineDuckDB:
		db, err = sql.Open("duckdb", "")
	default:
		return nil, fmt.Errorf("unknown store engine %q", engine)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", engine, err)
	}

	// A second connection to ":memory:" would be a different database
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s store: %w", engine, err)
	}
	return &Store{db: db, engine: engine}, nil
}

// Engine returns the engine backing the store
func (s *Store) Engine() Engine {
	return s.engine
}

// Dialect returns a human-readable SQL dialect name for prompts
func (s *Store) Dialect() string {
	if s.engine == EngineDuckDB {
		return "DuckDB"
	}
	return "SQLite"
}

// Close releases the database; its contents are discarded
func (s *Store) Close() error {
	return s.db.Close()
}

// Materialize creates the data table and loads every row of t into it
func (s *Store) Materialize(ctx context.Context, t *types.Table) error {
	if t == nil || len(t.Columns) == 0 {
		return fmt.Errorf("cannot materialize a table without columns")
	}

	colTypes := inferColumnTypes(t)
	defs := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(col), s.sqlType(colTypes[i]))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", TableName, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", TableName, placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(t.Columns))
	for rowIdx, row := range t.Rows {
		for i := range args {
			args[i] = nil
			if i < len(row) {
				args[i] = coerce(row[i], colTypes[i])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", rowIdx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}
	return nil
}

// Query runs a read query and returns its result as a table
func (s *Store) Query(ctx context.Context, query string) (*types.Table, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := types.NewTable(columns...)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// columnType is the storage class inferred for a column
type columnType int

const (
	colText columnType = iota
	colInteger
	colReal
	colBoolean
)

func (s *Store) sqlType(ct columnType) string {
	if s.engine == EngineDuckDB {
		switch ct {
		case colInteger:
			return "BIGINT"
		case colReal:
			return "DOUBLE"
		case colBoolean:
			return "BOOLEAN"
		default:
			return "VARCHAR"
		}
	}
	switch ct {
	case colInteger:
		return "INTEGER"
	case colReal:
		return "REAL"
	case colBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// inferColumnTypes picks the narrowest type that holds every non-nil cell.
// Mixed kinds fall back to text.
func inferColumnTypes(t *types.Table) []columnType {
	out := make([]columnType, len(t.Columns))
	for i := range t.Columns {
		seenInt, seenFloat, seenBool, seenOther := false, false, false, false
		for _, row := range t.Rows {
			if i >= len(row) {
				continue
			}
			switch row[i].(type) {
			case nil:
			case int, int32, int64:
				seenInt = true
			case float32, float64:
				seenFloat = true
			case bool:
				seenBool = true
			default:
				seenOther = true
			}
		}
		switch {
		case seenOther, seenBool && (seenInt || seenFloat):
			out[i] = colText
		case seenBool:
			out[i] = colBoolean
		case seenFloat:
			out[i] = colReal
		case seenInt:
			out[i] = colInteger
		default:
			out[i] = colText
		}
	}
	return out
}

// coerce converts a cell to the value bound for its column type
func coerce(v any, ct columnType) any {
	if v == nil {
		return nil
	}
	switch ct {
	case colReal:
		switch n := v.(type) {
		case int:
			return float64(n)
		case int32:
			return float64(n)
		case int64:
			return float64(n)
		case float32:
			return float64(n)
		}
	case colText:
		if _, ok := v.(string); !ok {
			return fmt.Sprint(v)
		}
	}
	return v
}

// normalizeValue maps driver values to the cell kinds of types.Table
func normalizeValue(v any) any {
	switch n := v.(type) {
	case nil, bool, int64, float64, string:
		return n
	case []byte:
		return string(n)
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return float64(n)
		}
		return int64(n)
	case uint:
		if uint64(n) > math.MaxInt64 {
			return float64(n)
		}
		return int64(n)
	case float32:
		return float64(n)
	case *big.Int:
		if n.IsInt64() {
			return n.Int64()
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f
	case time.Time:
		return n.Format(time.RFC3339)
	case interface{ Float64() float64 }:
		return n.Float64()
	default:
		return fmt.Sprint(n)
	}
}

// quoteIdent always double-quotes an identifier for DDL
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
