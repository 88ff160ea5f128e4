// Seed upserts strategy records from a yaml file. Strategies are created at
// seed/admin time; the core never mutates them.
package main

import (
	"context"
	"log"
	"os"

	"order_core/internal/models"
	"order_core/internal/store"
	"order_core/pkg/db"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type seedEntry struct {
	Name     string         `mapstructure:"name"`
	Priority int            `mapstructure:"priority"`
	Active   bool           `mapstructure:"active"`
	Horizon  string         `mapstructure:"horizon"`
	Config   map[string]any `mapstructure:"config"`
}

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	v := viper.New()
	v.SetConfigName("strategies")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, "read strategies config")
	}

	var entries []seedEntry
	if err := v.UnmarshalKey("strategies", &entries); err != nil {
		return errors.Wrap(err, "unmarshal strategies")
	}
	if len(entries) == 0 {
		return errors.New("no strategies to seed")
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = v.GetString("db_dsn")
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: dsn})
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	txm := db.NewPgTxManager(pool)
	strategies := store.NewStrategies()

	return txm.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		for _, e := range entries {
			st := &models.Strategy{
				Name:     e.Name,
				Priority: e.Priority,
				Active:   e.Active,
				Horizon:  models.Horizon(e.Horizon),
				Config:   e.Config,
			}
			if err := strategies.Upsert(ctx, tx, st); err != nil {
				return err
			}
			log.Printf("seeded strategy %q priority=%d active=%v", e.Name, e.Priority, e.Active)
		}
		return nil
	})
}
