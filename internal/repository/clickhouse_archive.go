package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
)

// ArchiveSchema creates the closed-trades table (idempotent).
func ArchiveSchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    closed_at     DateTime,
    position_id   String,
    opportunity_id String,
    symbol        String,
    stage         LowCardinality(String),
    entry_price   Float64,
    exit_price    Float64,
    size          Float64,
    realized_pnl  Float64,
    exit_reason   LowCardinality(String),
    sources       Array(String),
    opened_at     DateTime
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(closed_at)
ORDER BY (stage, closed_at, position_id)`, table)}
}

// ClickHouseArchive is the append-only closed-trade record behind attribution
// queries.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

func NewClickHouseArchive(db *sql.DB, table string) drepo.TradeArchive {
	return &ClickHouseArchive{db: db, table: table}
}

func (a *ClickHouseArchive) ArchiveClosed(ctx context.Context, p *models.Position) error {
	q := fmt.Sprintf(`INSERT INTO %s
(closed_at, position_id, opportunity_id, symbol, stage, entry_price, exit_price, size, realized_pnl, exit_reason, sources, opened_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.table)
	_, err := a.db.ExecContext(ctx, q,
		p.ExitedAt,
		p.ID,
		p.OpportunityID,
		p.Key.Symbol,
		string(p.Key.Stage),
		p.EntryPrice,
		p.ExitPrice,
		p.Size,
		p.RealizedPnL,
		string(p.Reason),
		p.Sources,
		p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("archive position %s: %w", p.ID, err)
	}
	return nil
}

func (a *ClickHouseArchive) QueryClosed(ctx context.Context, stage models.Stage, from, to time.Time, limit int) ([]*models.Position, error) {
	var conds []string
	var args []any
	if stage != "" {
		conds = append(conds, "stage = ?")
		args = append(args, string(stage))
	}
	conds = append(conds, "closed_at >= ?", "closed_at <= ?")
	args = append(args, from, to, limit)

	q := fmt.Sprintf(`SELECT position_id, opportunity_id, symbol, stage, entry_price, exit_price, size, realized_pnl, exit_reason, sources, opened_at, closed_at
FROM %s WHERE %s ORDER BY closed_at DESC LIMIT ?`, a.table, strings.Join(conds, " AND "))

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query closed: %w", err)
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		var p models.Position
		var st, reason string
		if err := rows.Scan(&p.ID, &p.OpportunityID, &p.Key.Symbol, &st, &p.EntryPrice,
			&p.ExitPrice, &p.Size, &p.RealizedPnL, &reason, &p.Sources, &p.OpenedAt, &p.ExitedAt); err != nil {
			return nil, fmt.Errorf("scan closed: %w", err)
		}
		p.Key.Stage = models.Stage(st)
		p.Reason = models.ExitReason(reason)
		p.Status = models.PositionClosed
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}
