// Package persistence implements the durable write-through pipeline of
// §4.4 and the startup recovery procedure of §4.5. The logical schema
// from §6 is realized here as literal SQLite DDL; the physical schema
// is otherwise an external concern per §1.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"bourse/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS brokers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	api_key_hash BLOB NOT NULL,
	webhook_url TEXT,
	balance INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	broker_id TEXT NOT NULL,
	document_number TEXT,
	side INTEGER NOT NULL,
	order_type INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	price INTEGER,
	quantity INTEGER NOT NULL,
	remaining_quantity INTEGER NOT NULL,
	valid_until INTEGER,
	status INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_open
	ON orders(symbol, side, status, price, created_at);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	buy_order_id TEXT NOT NULL,
	sell_order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	price INTEGER NOT NULL,
	quantity INTEGER NOT NULL,
	executed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades(symbol, executed_at);
CREATE INDEX IF NOT EXISTS idx_trades_buy ON trades(buy_order_id);
CREATE INDEX IF NOT EXISTS idx_trades_sell ON trades(sell_order_id);
`

// Store owns the durable SQLite connection pool. Per §5, it has
// exactly two consumers: the flusher (writes) and the lookup fallback
// (reads) — a minimal pool of 2 writer + 2 reader connections is
// plenty, since the flusher is single-threaded and the fallback path
// never mutates state.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// InsertBroker writes a new broker row synchronously; broker
// registration is rare and admin-gated, so it bypasses the async
// pipeline entirely (§4.5 supplement).
func (s *Store) InsertBroker(b *domain.Broker) error {
	_, err := s.db.Exec(
		`INSERT INTO brokers (id, name, api_key_hash, webhook_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID.String(), b.Name, b.CredentialHash[:], b.WebhookURL, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("persistence: insert broker: %w", err)
	}
	return nil
}

func nullableInt64(price int64, isLimit bool) any {
	if !isLimit {
		return nil
	}
	return price
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

// FlushBatch commits one batch in the fixed order mandated by §4.4
// step 3: new orders, then trades, then order status updates, then
// broker balance deltas computed from this batch's trades. The whole
// batch commits atomically or not at all.
func (s *Store) FlushBatch(newOrders []domain.Order, trades []TradeEvent, updates map[uuid.UUID]OrderUpdateEvent) error {
	if len(newOrders) == 0 && len(trades) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := bulkInsertOrders(tx, newOrders); err != nil {
		return err
	}
	if err := bulkInsertTrades(tx, trades); err != nil {
		return err
	}
	if err := bulkUpdateOrders(tx, updates); err != nil {
		return err
	}
	if err := bulkUpdateBalances(tx, trades); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit tx: %w", err)
	}
	committed = true
	return nil
}

func bulkInsertOrders(tx *sql.Tx, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO orders
		(id, broker_id, document_number, side, order_type, symbol, price, quantity, remaining_quantity, valid_until, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("persistence: prepare insert order: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		_, err := stmt.Exec(
			o.ID.String(), o.BrokerID.String(), o.DocumentNumber, int(o.Side), int(o.Type), o.Symbol,
			nullableInt64(o.Price, o.Type == domain.Limit), o.Quantity, o.RemainingQuantity,
			nullableTime(o.ValidUntil), int(o.Status), o.CreatedAt.UTC().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("persistence: insert order %s: %w", o.ID, err)
		}
	}
	return nil
}

func bulkInsertTrades(tx *sql.Tx, trades []TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO trades
		(id, buy_order_id, sell_order_id, symbol, price, quantity, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("persistence: prepare insert trade: %w", err)
	}
	defer stmt.Close()

	for _, te := range trades {
		t := te.Trade
		_, err := stmt.Exec(
			t.ID.String(), t.BuyOrderID.String(), t.SellOrderID.String(), t.Symbol,
			t.Price, t.Quantity, t.ExecutedAt.UTC().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("persistence: insert trade %s: %w", t.ID, err)
		}
	}
	return nil
}

func bulkUpdateOrders(tx *sql.Tx, updates map[uuid.UUID]OrderUpdateEvent) error {
	if len(updates) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`UPDATE orders SET status = ?, remaining_quantity = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("persistence: prepare update order: %w", err)
	}
	defer stmt.Close()

	for id, u := range updates {
		if _, err := stmt.Exec(int(u.Status), u.RemainingQuantity, id.String()); err != nil {
			return fmt.Errorf("persistence: update order %s: %w", id, err)
		}
	}
	return nil
}

// bulkUpdateBalances computes each broker's net delta from this
// batch's trades and applies it in one statement per broker.
func bulkUpdateBalances(tx *sql.Tx, trades []TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}
	deltas := make(map[uuid.UUID]int64)
	for _, te := range trades {
		amount := int64(te.Trade.Quantity) * te.Trade.Price
		deltas[te.Buyer.BrokerID] -= amount
		deltas[te.Seller.BrokerID] += amount
	}

	stmt, err := tx.Prepare(`UPDATE brokers SET balance = balance + ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("persistence: prepare update balance: %w", err)
	}
	defer stmt.Close()
	for id, delta := range deltas {
		if _, err := stmt.Exec(delta, id.String()); err != nil {
			return fmt.Errorf("persistence: update balance %s: %w", id, err)
		}
	}
	return nil
}
