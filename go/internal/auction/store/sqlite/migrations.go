package sqlite

import "database/sql"

// bidders before items: items.owner_id references them
const schema = `
CREATE TABLE IF NOT EXISTS bidders (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    budget INTEGER NOT NULL CHECK (budget >= 0),
    identity TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT '',
    base_price INTEGER NOT NULL CHECK (base_price >= 0),
    status TEXT NOT NULL DEFAULT 'AVAILABLE',
    owner_id TEXT,
    sold_price INTEGER,
    attributes TEXT,
    resolved_at INTEGER,
    FOREIGN KEY (owner_id) REFERENCES bidders(id)
);

CREATE TABLE IF NOT EXISTS bids (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    bidder_id TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    placed_at INTEGER NOT NULL,
    FOREIGN KEY (item_id) REFERENCES items(id),
    FOREIGN KEY (bidder_id) REFERENCES bidders(id)
);

CREATE TABLE IF NOT EXISTS summaries (
    id TEXT PRIMARY KEY,
    summary TEXT NOT NULL,
    ended_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status_position ON items(status, position);
CREATE INDEX IF NOT EXISTS idx_bids_item_id ON bids(item_id);
`

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
