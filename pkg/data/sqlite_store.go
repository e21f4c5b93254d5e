package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

const storeComponent = "sqlite_store"

var tableNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// TableName returns the candle table of a market, e.g. candles_usdt_btc
func TableName(currency, asset string) string {
	name := fmt.Sprintf("candles_%s_%s", strings.ToLower(currency), strings.ToLower(asset))
	return tableNameUnsafe.ReplaceAllString(name, "_")
}

// SQLiteStore persists candles of one market in one table keyed by start.
// Writing a candle whose start already exists replaces it.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	table   string
	version types.SchemaVersion
}

// OpenSQLiteStore opens (or creates) the database at path and makes sure the
// candle table for version exists.
func OpenSQLiteStore(path, table string, version types.SchemaVersion) (*SQLiteStore, error) {
	if path == "" {
		return nil, apperrors.NewConfigurationError(storeComponent, "Open", "database path must not be empty")
	}
	if table == "" || tableNameUnsafe.MatchString(table) {
		return nil, apperrors.NewConfigurationError(storeComponent, "Open", fmt.Sprintf("invalid table name %q", table))
	}
	if version == 0 {
		version = types.SchemaV1
	}
	if !version.Valid() {
		return nil, apperrors.NewConfigurationError(storeComponent, "Open", fmt.Sprintf("unknown candle version %d", version))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewStorageError(storeComponent, "Open", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.NewStorageError(storeComponent, "Open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, path: path, table: table, version: version}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, apperrors.NewStorageError(storeComponent, "Open", err)
	}
	if err := s.checkVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file
func (s *SQLiteStore) Path() string { return s.path }

// Version returns the schema version of the table
func (s *SQLiteStore) Version() types.SchemaVersion { return s.version }

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	fields := `
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		start  INTEGER UNIQUE,
		open   REAL NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		vwp    REAL NOT NULL,
		volume REAL NOT NULL,
		trades INTEGER NOT NULL`
	if s.version == types.SchemaV2 {
		fields += `,
		buy_volume REAL NOT NULL,
		buy_trades INTEGER NOT NULL,
		lag        INTEGER NOT NULL,
		raw        TEXT`
	}

	_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, s.table, fields))
	return err
}

// checkVersion rejects an existing table created for the other schema version
func (s *SQLiteStore) checkVersion() error {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s);`, s.table))
	if err != nil {
		return apperrors.NewStorageError(storeComponent, "Open", err)
	}
	defer rows.Close()

	stored := types.SchemaV1
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return apperrors.NewStorageError(storeComponent, "Open", err)
		}
		if name == "buy_volume" {
			stored = types.SchemaV2
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.NewStorageError(storeComponent, "Open", err)
	}

	if stored != s.version {
		return apperrors.NewConfigurationError(storeComponent, "Open",
			fmt.Sprintf("table %s holds version %d candles, configured version is %d", s.table, stored, s.version)).
			WithContext("path", s.path)
	}
	return nil
}

func (s *SQLiteStore) upsertSQL() string {
	if s.version == types.SchemaV2 {
		return fmt.Sprintf(`
		INSERT INTO %s (start, open, high, low, close, vwp, volume, trades, buy_volume, buy_trades, lag, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(start) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    vwp=excluded.vwp,
		    volume=excluded.volume,
		    trades=excluded.trades,
		    buy_volume=excluded.buy_volume,
		    buy_trades=excluded.buy_trades,
		    lag=excluded.lag,
		    raw=excluded.raw`, s.table)
	}
	return fmt.Sprintf(`
		INSERT INTO %s (start, open, high, low, close, vwp, volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(start) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    vwp=excluded.vwp,
		    volume=excluded.volume,
		    trades=excluded.trades`, s.table)
}

// WriteCandles upserts candles by start in a single transaction
func (s *SQLiteStore) WriteCandles(ctx context.Context, candles []types.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError(storeComponent, "WriteCandles", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.upsertSQL())
	if err != nil {
		_ = tx.Rollback()
		return apperrors.NewStorageError(storeComponent, "WriteCandles", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		args := []interface{}{c.Start.Unix(), c.Open, c.High, c.Low, c.Close, c.VWP, c.Volume, c.Trades}
		if s.version == types.SchemaV2 {
			flow := c.OrderFlow
			if flow == nil {
				flow = types.NewOrderFlow(0)
			}
			raw, err := json.Marshal(flow.Raw)
			if err != nil {
				_ = tx.Rollback()
				return apperrors.NewDataError(storeComponent, "WriteCandles", err)
			}
			args = append(args, flow.BuyVolume, flow.BuyTrades, flow.Lag, string(raw))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return apperrors.NewStorageError(storeComponent, "WriteCandles", err).
				WithContext("start", c.Start.Unix())
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError(storeComponent, "WriteCandles", err)
	}
	return nil
}

// ReadRange calls fn for every candle with from <= start <= to in ascending
// start order. Iteration stops at the first error fn returns.
func (s *SQLiteStore) ReadRange(ctx context.Context, from, to time.Time, fn func(types.Candle) error) error {
	columns := "start, open, high, low, close, vwp, volume, trades"
	if s.version == types.SchemaV2 {
		columns += ", buy_volume, buy_trades, lag, raw"
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE start BETWEEN ? AND ? ORDER BY start`, columns, s.table),
		from.Unix(), to.Unix())
	if err != nil {
		return apperrors.NewStorageError(storeComponent, "ReadRange", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := s.scan(rows)
		if err != nil {
			return apperrors.NewDataError(storeComponent, "ReadRange", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.NewStorageError(storeComponent, "ReadRange", err)
	}
	return nil
}

// Range returns every candle with from <= start <= to, ascending
func (s *SQLiteStore) Range(ctx context.Context, from, to time.Time) ([]types.Candle, error) {
	var out []types.Candle
	err := s.ReadRange(ctx, from, to, func(c types.Candle) error {
		out = append(out, c)
		return nil
	})
	return out, err
}

// Count returns the number of stored candles
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(1) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, apperrors.NewStorageError(storeComponent, "Count", err)
	}
	return n, nil
}

// Bounds returns the first and last stored start. ok is false when the table is empty.
func (s *SQLiteStore) Bounds(ctx context.Context) (first, last time.Time, ok bool, err error) {
	var lo, hi sql.NullInt64
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MIN(start), MAX(start) FROM %s`, s.table))
	if err := row.Scan(&lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, apperrors.NewStorageError(storeComponent, "Bounds", err)
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return time.Unix(lo.Int64, 0).UTC(), time.Unix(hi.Int64, 0).UTC(), true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scan(row rowScanner) (types.Candle, error) {
	var (
		c     types.Candle
		start int64
	)

	if s.version == types.SchemaV2 {
		flow := types.NewOrderFlow(0)
		var raw sql.NullString
		if err := row.Scan(&start, &c.Open, &c.High, &c.Low, &c.Close, &c.VWP, &c.Volume, &c.Trades,
			&flow.BuyVolume, &flow.BuyTrades, &flow.Lag, &raw); err != nil {
			return c, err
		}
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &flow.Raw); err != nil {
				return c, fmt.Errorf("decode raw trades of %d: %w", start, err)
			}
		}
		if flow.Raw == nil {
			flow.Raw = []types.Trade{}
		}
		c.OrderFlow = flow
	} else if err := row.Scan(&start, &c.Open, &c.High, &c.Low, &c.Close, &c.VWP, &c.Volume, &c.Trades); err != nil {
		return c, err
	}

	c.Start = time.Unix(start, 0).UTC()
	c.End = c.Start.Add(time.Minute)
	return c, nil
}
