package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/gavel/go/internal/catalog"
	"github.com/mcdev12/gavel/go/internal/dbconfig"
)

type counts struct {
	inserted int
	updated  int
	skipped  int
	errs     int
}

func (c counts) String() string {
	return fmt.Sprintf("%d inserted, %d updated, %d skipped, %d errors", c.inserted, c.updated, c.skipped, c.errs)
}

// Bidders are always refreshed. Items only change while still AVAILABLE so a
// rerun never rewrites the outcome of a finished lot.
const (
	upsertBidder = `
        INSERT INTO auction_bidders (id, name, budget, identity)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
           SET name = EXCLUDED.name,
               budget = EXCLUDED.budget,
               identity = EXCLUDED.identity,
               updated_at = now()
        RETURNING (xmax = 0)
    `
	upsertItem = `
        INSERT INTO auction_items (id, name, role, base_price, attributes)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE
           SET name = EXCLUDED.name,
               role = EXCLUDED.role,
               base_price = EXCLUDED.base_price,
               attributes = EXCLUDED.attributes
         WHERE auction_items.status = 'AVAILABLE'
        RETURNING (xmax = 0)
    `
)

func main() {
	path := flag.String("file", os.Getenv("SEED_FILE"), "catalog file (JSON or YAML)")
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: seed_items -file catalog.yaml (or set SEED_FILE)")
		os.Exit(2)
	}

	// 1) Load and validate the catalog
	cat, err := catalog.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert bidders first; items reference them through owner_id
	var bidders counts
	for _, b := range cat.Bidders {
		tally(ctx, pool, &bidders, "bidder", b.Name, upsertBidder, b.ID, b.Name, b.Budget, b.Identity)
	}

	var items counts
	for _, it := range cat.Items {
		var attrs any
		if len(it.Attributes) > 0 {
			attrs = it.Attributes
		}
		tally(ctx, pool, &items, "item", it.Name, upsertItem, it.ID, it.Name, it.Role, it.BasePrice, attrs)
	}

	// 4) Print summary
	fmt.Printf("Bidders seed complete: %d total, %s\n", len(cat.Bidders), bidders)
	fmt.Printf("Items seed complete: %d total, %s\n", len(cat.Items), items)
	if bidders.errs+items.errs > 0 {
		os.Exit(1)
	}
}

func tally(ctx context.Context, pool *pgxpool.Pool, c *counts, kind, name, query string, args ...any) {
	var inserted bool
	err := pool.QueryRow(ctx, query, args...).Scan(&inserted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		c.skipped++
	case err != nil:
		fmt.Fprintf(os.Stderr, "error upserting %s %s: %v\n", kind, name, err)
		c.errs++
	case inserted:
		c.inserted++
	default:
		c.updated++
	}
}
