package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/predictbot/internal/domain"
)

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	pool *pgxpool.Pool
}

func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, strategy, asset, status,
	entry_price, current_price, size, cost_basis, current_value,
	realized_pnl, unrealized_pnl, tx_hash, metadata,
	opened_at, updated_at, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string

	err := row.Scan(
		&p.ID, &p.Strategy, &p.Asset, &status,
		&p.EntryPrice, &p.CurrentPrice, &p.Size, &p.CostBasis, &p.CurrentValue,
		&p.RealizedPnL, &p.UnrealizedPnL, &p.TxHash, &p.Metadata,
		&p.OpenedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// GetOpen returns open positions, optionally filtered by strategy.
func (s *PositionStore) GetOpen(ctx context.Context, strategy string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = 'open'`
	args := []any{}
	if strategy != "" {
		query += " AND strategy = $1"
		args = append(args, strategy)
	}
	query += " ORDER BY opened_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	return positions, nil
}

// Upsert inserts a position or replaces its mutable fields.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, strategy, asset, status,
			entry_price, current_price, size, cost_basis, current_value,
			realized_pnl, unrealized_pnl, tx_hash, metadata,
			opened_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, NOW(), $15
		)
		ON CONFLICT (id) DO UPDATE SET
			status         = EXCLUDED.status,
			current_price  = EXCLUDED.current_price,
			size           = EXCLUDED.size,
			cost_basis     = EXCLUDED.cost_basis,
			current_value  = EXCLUDED.current_value,
			realized_pnl   = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			tx_hash        = EXCLUDED.tx_hash,
			metadata       = EXCLUDED.metadata,
			updated_at     = NOW(),
			closed_at      = EXCLUDED.closed_at`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Strategy, p.Asset, string(p.Status),
		p.EntryPrice, p.CurrentPrice, p.Size, p.CostBasis, p.CurrentValue,
		p.RealizedPnL, p.UnrealizedPnL, p.TxHash, p.Metadata,
		p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	const query = `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// UpdatePrice marks a position to a fresh price and value.
func (s *PositionStore) UpdatePrice(ctx context.Context, id string, price, value float64) error {
	const query = `
		UPDATE positions SET
			current_price  = $2,
			current_value  = $3,
			unrealized_pnl = $3 - cost_basis,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, price, value)
	if err != nil {
		return fmt.Errorf("postgres: update price for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Close transitions a position to closed with realized PnL.
func (s *PositionStore) Close(ctx context.Context, id, txRef string, exitPrice, realizedPnL float64) error {
	const query = `
		UPDATE positions SET
			status         = 'closed',
			current_price  = $2,
			realized_pnl   = $3,
			unrealized_pnl = 0,
			tx_hash        = NULLIF($4, ''),
			updated_at     = NOW(),
			closed_at      = $5
		WHERE id = $1 AND status <> 'closed'`

	tag, err := s.pool.Exec(ctx, query, id, exitPrice, realizedPnL, txRef, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %s not open: %w", id, domain.ErrNotFound)
	}
	return nil
}

// TotalRealizedPnL sums realized PnL across all positions.
func (s *PositionStore) TotalRealizedPnL(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(realized_pnl), 0) FROM positions`

	var total float64
	if err := s.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: total realized pnl: %w", err)
	}
	return total, nil
}
