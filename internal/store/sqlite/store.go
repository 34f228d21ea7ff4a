// Package sqlite is the system of record: price points, signals, and
// positions. A single-connection WAL database keeps the writer simple;
// every write path tolerates failure by letting the caller degrade to
// in-memory operation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // e.g. "data/signals.db"
}

// Store implements model.PriceStore, model.SignalStore, and
// model.PositionStore over one SQLite database.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database with WAL mode and the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_points (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			price   REAL    NOT NULL,
			source  TEXT    NOT NULL,
			market  TEXT    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			direction    TEXT    NOT NULL,
			confidence   INTEGER NOT NULL,
			entry_price  TEXT    NOT NULL,
			target_price TEXT    NOT NULL,
			stop_loss    TEXT    NOT NULL,
			timeframe    TEXT    NOT NULL,
			market       TEXT    NOT NULL,
			status       TEXT    NOT NULL,
			created_at   INTEGER NOT NULL,
			expires_at   INTEGER NOT NULL,
			source       TEXT    NOT NULL,
			risk         TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);

		CREATE TABLE IF NOT EXISTS positions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol        TEXT    NOT NULL,
			direction     TEXT    NOT NULL,
			quantity      TEXT    NOT NULL,
			entry_price   TEXT    NOT NULL,
			current_price TEXT    NOT NULL,
			target_price  TEXT    NOT NULL,
			stop_loss     TEXT    NOT NULL,
			market        TEXT    NOT NULL,
			opened_at     INTEGER NOT NULL,
			status        TEXT    NOT NULL,
			close_reason  TEXT,
			closed_at     INTEGER,
			realized_pnl  TEXT    NOT NULL DEFAULT '0'
		);
		CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	`)
	return err
}

// ── PriceStore ──

// InsertPricePoint appends one observation. Re-observing the same
// symbol/timestamp replaces the row.
func (s *Store) InsertPricePoint(ctx context.Context, p model.PricePoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO price_points (symbol, ts, price, source, market)
		VALUES (?, ?, ?, ?, ?)`,
		p.Symbol, p.TS.UnixNano(), p.Price, p.Source, string(p.Market))
	if err != nil {
		return fmt.Errorf("sqlite insert price point: %w", err)
	}
	return nil
}

// RecentPricePoints reads up to limit most recent points for a symbol,
// oldest first.
func (s *Store) RecentPricePoints(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, ts, price, source, market
		FROM (
			SELECT * FROM price_points WHERE symbol = ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite read price points: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var (
			p      model.PricePoint
			ts     int64
			market string
		)
		if err := rows.Scan(&p.Symbol, &ts, &p.Price, &p.Source, &market); err != nil {
			return nil, err
		}
		p.TS = time.Unix(0, ts).UTC()
		p.Market = model.MarketClass(market)
		points = append(points, p)
	}
	return points, rows.Err()
}

// PrunePricePoints removes observations older than the cutoff and
// returns the number of rows removed.
func (s *Store) PrunePricePoints(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM price_points WHERE ts < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune price points: %w", err)
	}
	return res.RowsAffected()
}

// ── SignalStore ──

func (s *Store) InsertSignal(ctx context.Context, sig *model.Signal) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals
			(symbol, direction, confidence, entry_price, target_price, stop_loss,
			 timeframe, market, status, created_at, expires_at, source, risk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.Symbol, string(sig.Direction), sig.Confidence,
		sig.EntryPrice.String(), sig.TargetPrice.String(), sig.StopLoss.String(),
		string(sig.Timeframe), string(sig.Market), string(sig.Status),
		sig.CreatedAt.UnixNano(), sig.ExpiresAt.UnixNano(), sig.Source, string(sig.Risk))
	if err != nil {
		return fmt.Errorf("sqlite insert signal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite signal id: %w", err)
	}
	sig.ID = id
	return nil
}

func (s *Store) ActiveSignals(ctx context.Context, now time.Time) ([]model.Signal, error) {
	return s.querySignals(ctx, `
		SELECT id, symbol, direction, confidence, entry_price, target_price,
		       stop_loss, timeframe, market, status, created_at, expires_at, source, risk
		FROM signals
		WHERE status = ? AND expires_at > ?
		ORDER BY confidence DESC, created_at DESC`,
		string(model.SignalActive), now.UnixNano())
}

func (s *Store) SignalsBySymbol(ctx context.Context, symbol string) ([]model.Signal, error) {
	return s.querySignals(ctx, `
		SELECT id, symbol, direction, confidence, entry_price, target_price,
		       stop_loss, timeframe, market, status, created_at, expires_at, source, risk
		FROM signals
		WHERE symbol = ?
		ORDER BY created_at DESC`,
		symbol)
}

// DeleteSignalsWhere removes a symbol's signals that are expired at now
// or strictly below the confidence floor.
func (s *Store) DeleteSignalsWhere(ctx context.Context, symbol string, now time.Time, belowConfidence int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM signals
		WHERE symbol = ? AND (expires_at <= ? OR confidence < ?)`,
		symbol, now.UnixNano(), belowConfidence)
	if err != nil {
		return 0, fmt.Errorf("sqlite delete signals: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) querySignals(ctx context.Context, query string, args ...interface{}) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var signals []model.Signal
	for rows.Next() {
		var (
			sig                  model.Signal
			direction, timeframe string
			market, status, risk string
			entry, target, stop  string
			created, expires     int64
		)
		if err := rows.Scan(&sig.ID, &sig.Symbol, &direction, &sig.Confidence,
			&entry, &target, &stop, &timeframe, &market, &status,
			&created, &expires, &sig.Source, &risk); err != nil {
			return nil, err
		}
		sig.Direction = model.Direction(direction)
		sig.Timeframe = model.Timeframe(timeframe)
		sig.Market = model.MarketClass(market)
		sig.Status = model.SignalStatus(status)
		sig.Risk = model.RiskTier(risk)
		sig.CreatedAt = time.Unix(0, created).UTC()
		sig.ExpiresAt = time.Unix(0, expires).UTC()
		if sig.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("sqlite bad entry price %q: %w", entry, err)
		}
		if sig.TargetPrice, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("sqlite bad target price %q: %w", target, err)
		}
		if sig.StopLoss, err = decimal.NewFromString(stop); err != nil {
			return nil, fmt.Errorf("sqlite bad stop loss %q: %w", stop, err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ── PositionStore ──

func (s *Store) InsertPosition(ctx context.Context, p *model.Position) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(symbol, direction, quantity, entry_price, current_price, target_price,
			 stop_loss, market, opened_at, status, close_reason, closed_at, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, string(p.Direction), p.Quantity.String(),
		p.EntryPrice.String(), p.CurrentPrice.String(), p.TargetPrice.String(),
		p.StopLoss.String(), string(p.Market), p.OpenedAt.UnixNano(),
		string(p.Status), string(p.CloseReason), closedAtArg(p), p.RealizedPnL.String())
	if err != nil {
		return fmt.Errorf("sqlite insert position: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite position id: %w", err)
	}
	p.ID = id
	return nil
}

func (s *Store) OpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, direction, quantity, entry_price, current_price,
		       target_price, stop_loss, market, opened_at, status, close_reason,
		       closed_at, realized_pnl
		FROM positions
		WHERE status = ?
		ORDER BY opened_at ASC`,
		string(model.PositionOpen))
	if err != nil {
		return nil, fmt.Errorf("sqlite query positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdatePosition rewrites a position row, typically on price refresh or
// closure.
func (s *Store) UpdatePosition(ctx context.Context, p *model.Position) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET current_price = ?, status = ?, close_reason = ?, closed_at = ?, realized_pnl = ?
		WHERE id = ?`,
		p.CurrentPrice.String(), string(p.Status), string(p.CloseReason),
		closedAtArg(p), p.RealizedPnL.String(), p.ID)
	if err != nil {
		return fmt.Errorf("sqlite update position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sqlite update position %d: no such row", p.ID)
	}
	return nil
}

func closedAtArg(p *model.Position) interface{} {
	if p.ClosedAt.IsZero() {
		return nil
	}
	return p.ClosedAt.UnixNano()
}

func scanPosition(rows *sql.Rows) (model.Position, error) {
	var (
		p                         model.Position
		direction, market, status string
		qty, entry, current       string
		target, stop, pnl         string
		closeReason               sql.NullString
		openedAt                  int64
		closedAt                  sql.NullInt64
	)
	err := rows.Scan(&p.ID, &p.Symbol, &direction, &qty, &entry, &current,
		&target, &stop, &market, &openedAt, &status, &closeReason, &closedAt, &pnl)
	if err != nil {
		return model.Position{}, err
	}

	p.Direction = model.Direction(direction)
	p.Market = model.MarketClass(market)
	p.Status = model.PositionStatus(status)
	p.OpenedAt = time.Unix(0, openedAt).UTC()
	if closeReason.Valid {
		p.CloseReason = model.CloseReason(closeReason.String)
	}
	if closedAt.Valid {
		p.ClosedAt = time.Unix(0, closedAt.Int64).UTC()
	}
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return model.Position{}, fmt.Errorf("sqlite bad quantity %q: %w", qty, err)
	}
	if p.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return model.Position{}, fmt.Errorf("sqlite bad entry price %q: %w", entry, err)
	}
	if p.CurrentPrice, err = decimal.NewFromString(current); err != nil {
		return model.Position{}, fmt.Errorf("sqlite bad current price %q: %w", current, err)
	}
	if p.TargetPrice, err = decimal.NewFromString(target); err != nil {
		return model.Position{}, fmt.Errorf("sqlite bad target price %q: %w", target, err)
	}
	if p.StopLoss, err = decimal.NewFromString(stop); err != nil {
		return model.Position{}, fmt.Errorf("sqlite bad stop loss %q: %w", stop, err)
	}
	if p.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return model.Position{}, fmt.Errorf("sqlite bad realized pnl %q: %w", pnl, err)
	}
	return p, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
