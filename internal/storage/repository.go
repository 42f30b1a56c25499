package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cryptospread/internal/alerting"
	"cryptospread/internal/spread"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSpreadRowSQL = `INSERT INTO spread_samples (
        taken_at,
        pair,
        venue,
        dex_price,
        cex_bid,
        cex_ask,
        spread_direct,
        spread_reverse
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listRecentSpreadRowsSQL = `SELECT
        taken_at,
        pair,
        venue,
        dex_price,
        cex_bid,
        cex_ask,
        spread_direct,
        spread_reverse
    FROM spread_samples
    WHERE pair = $1
    ORDER BY taken_at DESC
    LIMIT $2;`

	insertAlertRowSQL = `INSERT INTO alerts (
        taken_at,
        pair,
        venue,
        direction,
        value_pct,
        threshold_pct
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listRecentAlertRowsSQL = `SELECT
        id,
        taken_at,
        pair,
        venue,
        direction,
        value_pct,
        threshold_pct,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteSpreadRowsBeforeSQL = `DELETE FROM spread_samples WHERE taken_at < $1;`
	deleteAlertRowsBeforeSQL  = `DELETE FROM alerts WHERE created_at < $1;`
)

// Store archives spread observations and alerts in PostgreSQL. A nil *Store
// is a valid no-op archive, matching the optional DSN.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ArchiveSnapshot persists every venue observation of a snapshot. Rows are
// written in one batch.
func (s *Store) ArchiveSnapshot(ctx context.Context, snapshot spread.Snapshot) error {
	if s == nil || s.pool == nil {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for pairName, pairSnap := range snapshot.Pairs {
		for venue, vs := range pairSnap.Spreads {
			batch.Queue(insertSpreadRowSQL,
				snapshot.TakenAt,
				pairName,
				string(venue),
				vs.DexPrice,
				floatArg(pairSnap.CexBid),
				floatArg(pairSnap.CexAsk),
				floatArg(vs.Direct),
				floatArg(vs.Reverse),
			)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("archive spread row: %w", execErr)
		}
	}
	return nil
}

// ArchiveAlerts persists triggered alerts.
func (s *Store) ArchiveAlerts(ctx context.Context, events []alerting.Event) error {
	if s == nil || s.pool == nil {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(insertAlertRowSQL,
			event.At,
			event.Pair,
			string(event.Venue),
			string(event.Direction),
			event.Value,
			event.Threshold,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("archive alert row: %w", execErr)
		}
	}
	return nil
}

// ListRecentSpreadRows lists the most recent observations for a pair.
func (s *Store) ListRecentSpreadRows(ctx context.Context, pair string, limit int) ([]SpreadRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSpreadRowsSQL, pair, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent spread rows: %w", queryErr)
	}
	defer rows.Close()

	out := make([]SpreadRow, 0, limit)
	for rows.Next() {
		var row SpreadRow
		if err := rows.Scan(
			&row.TakenAt,
			&row.Pair,
			&row.Venue,
			&row.DexPrice,
			&row.CexBid,
			&row.CexAsk,
			&row.Direct,
			&row.Reverse,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListRecentAlertRows lists most recent alerts.
func (s *Store) ListRecentAlertRows(ctx context.Context, limit int) ([]AlertRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertRowsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alert rows: %w", queryErr)
	}
	defer rows.Close()

	out := make([]AlertRow, 0, limit)
	for rows.Next() {
		var row AlertRow
		if err := rows.Scan(
			&row.ID,
			&row.TakenAt,
			&row.Pair,
			&row.Venue,
			&row.Direction,
			&row.Value,
			&row.Threshold,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// PruneBefore deletes archived rows older than the cutoff.
func (s *Store) PruneBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSpreadRowsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete spread rows before: %w", execErr)
	}
	if _, execErr := pool.Exec(ctx, deleteAlertRowsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alert rows before: %w", execErr)
	}
	return nil
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
