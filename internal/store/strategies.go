package store

import (
	"context"
	"fmt"

	"order_core/internal/models"
	"order_core/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Strategies implement db store. Strategy rows are seeded by operators; the
// core only reads them.
type Strategies struct{}

func NewStrategies() *Strategies {
	return &Strategies{}
}

func (s *Strategies) GetByID(ctx context.Context, tx db.Transaction, id int64) (st *models.Strategy, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.GetByID: %w", err)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT id, name, priority, active, horizon, config, created_at
		   FROM strategies WHERE id = $1`, id)
	return scanStrategy(row)
}

func (s *Strategies) ListActive(ctx context.Context, tx db.Transaction) (out []*models.Strategy, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.ListActive: %w", err)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT id, name, priority, active, horizon, config, created_at
		   FROM strategies WHERE active ORDER BY priority DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Upsert is used by the seeding CLI only.
func (s *Strategies) Upsert(ctx context.Context, tx db.Transaction, st *models.Strategy) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Strategies.Upsert: %w", err)
		}
	}()

	cfg, err := sonic.Marshal(st.Config)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO strategies (name, priority, active, horizon, config, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (name) DO UPDATE
		    SET priority = EXCLUDED.priority,
		        active   = EXCLUDED.active,
		        horizon  = EXCLUDED.horizon,
		        config   = EXCLUDED.config`,
		st.Name, st.Priority, st.Active, st.Horizon, cfg)
	return err
}

type strategyRow interface {
	Scan(dest ...any) error
}

func scanStrategy(row strategyRow) (*models.Strategy, error) {
	var (
		st  models.Strategy
		cfg []byte
	)
	err := row.Scan(&st.ID, &st.Name, &st.Priority, &st.Active, &st.Horizon, &cfg, &st.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // absent, not an error
	}
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := sonic.Unmarshal(cfg, &st.Config); err != nil {
			return nil, err
		}
	}
	return &st, nil
}
