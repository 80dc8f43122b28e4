package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/auction/store/memory"
	"github.com/mcdev12/gavel/go/internal/auction/store/postgres"
	"github.com/mcdev12/gavel/go/internal/auction/store/sqlite"
	"github.com/mcdev12/gavel/go/internal/catalog"
	"github.com/mcdev12/gavel/go/internal/config"
	"github.com/mcdev12/gavel/go/internal/dbconfig"
)

// storeHandle is the selected backend plus what the server needs to health
// check and close it
type storeHandle struct {
	store.Store
	ping  func(ctx context.Context) error
	close func() error
}

func setupStore(ctx context.Context, cfg *config.Config) (*storeHandle, error) {
	var cat *catalog.Catalog
	if cfg.Store.SeedFile != "" {
		var err error
		if cat, err = catalog.Load(cfg.Store.SeedFile); err != nil {
			return nil, err
		}
	}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		st := memory.New(nil, nil)
		if cat != nil {
			for _, b := range cat.Bidders {
				st.AddBidder(b)
			}
			for _, item := range cat.Items {
				st.AddItem(item)
			}
		}
		log.Warn().Msg("using in-memory store; auction results are not durable")
		return &storeHandle{
			Store: st,
			ping:  func(context.Context) error { return nil },
			close: func() error { return nil },
		}, nil

	case config.BackendSQLite:
		st, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cat != nil {
			if err := seedSQLite(ctx, st, cat); err != nil {
				st.Close()
				return nil, err
			}
		}
		log.Info().Str("path", cfg.Store.SQLitePath).Msg("using sqlite store")
		return &storeHandle{
			Store: st,
			ping:  func(context.Context) error { return nil },
			close: st.Close,
		}, nil

	case config.BackendPostgres:
		conn, err := dbconfig.NewConfigFromEnv().Open(ctx)
		if err != nil {
			return nil, err
		}
		st := postgres.New(conn)
		if err := st.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		if cat != nil {
			if err := seedPostgres(ctx, st, cat); err != nil {
				conn.Close()
				return nil, err
			}
		}
		return &storeHandle{Store: st, ping: conn.PingContext, close: conn.Close}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func seedSQLite(ctx context.Context, st *sqlite.Store, cat *catalog.Catalog) error {
	for _, b := range cat.Bidders {
		if err := st.AddBidder(ctx, b); err != nil {
			return err
		}
	}
	for _, item := range cat.Items {
		if _, err := st.GetItem(ctx, item.ID); err == nil {
			continue
		}
		if err := st.AddItem(ctx, item); err != nil {
			return err
		}
	}
	log.Info().Int("items", len(cat.Items)).Int("bidders", len(cat.Bidders)).Msg("seeded sqlite store")
	return nil
}

func seedPostgres(ctx context.Context, st *postgres.Store, cat *catalog.Catalog) error {
	for _, b := range cat.Bidders {
		if err := st.SeedBidder(ctx, b); err != nil {
			return fmt.Errorf("seed bidder %s: %w", b.Name, err)
		}
	}
	for _, item := range cat.Items {
		if err := st.SeedItem(ctx, item); err != nil {
			return fmt.Errorf("seed item %s: %w", item.Name, err)
		}
	}
	log.Info().Int("items", len(cat.Items)).Int("bidders", len(cat.Bidders)).Msg("seeded postgres store")
	return nil
}
