package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bourse/internal/domain"
)

// Snapshot is everything §4.5 recovery rehydrates from durable
// storage, in the order it must be loaded: brokers first, then open
// orders (ascending by CreatedAt, preserving time priority), then the
// trades referencing those orders, then each symbol's recent-trade
// prices.
type Snapshot struct {
	Brokers      []*domain.Broker
	OpenOrders   []*domain.Order
	Trades       []*domain.Trade
	RecentPrices map[string][]int64 // oldest first, capped at Recover's ringCapacity per symbol
}

// Recover loads a full Snapshot. The caller (cmd/exchanged) is
// responsible for feeding it into the registry, book, order index,
// trade index, and recent-trade rings before admitting any request.
func (s *Store) Recover(ringCapacity int) (*Snapshot, error) {
	brokers, err := s.loadBrokers()
	if err != nil {
		return nil, err
	}
	orders, err := s.loadOpenOrders()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	trades, err := s.loadTradesForOrders(ids)
	if err != nil {
		return nil, err
	}
	recent, err := s.loadRecentPrices(ringCapacity)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Brokers: brokers, OpenOrders: orders, Trades: trades, RecentPrices: recent}, nil
}

func (s *Store) loadBrokers() ([]*domain.Broker, error) {
	rows, err := s.db.Query(`SELECT id, name, api_key_hash, webhook_url, balance FROM brokers`)
	if err != nil {
		return nil, fmt.Errorf("persistence: load brokers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Broker
	for rows.Next() {
		var idStr, name, webhook string
		var hash []byte
		var balance int64
		if err := rows.Scan(&idStr, &name, &hash, &webhook, &balance); err != nil {
			return nil, fmt.Errorf("persistence: scan broker: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("persistence: parse broker id: %w", err)
		}
		b := &domain.Broker{ID: id, Name: name, WebhookURL: webhook, Balance: balance}
		copy(b.CredentialHash[:], hash)
		out = append(out, b)
	}
	return out, rows.Err()
}

// loadOpenOrders loads every order whose status is open and whose
// valid_until is still in the future, ordered by created_at ascending
// so FIFO position within a price level is reconstructed correctly.
func (s *Store) loadOpenOrders() ([]*domain.Order, error) {
	now := time.Now().UTC().UnixNano()
	rows, err := s.db.Query(`
		SELECT id, broker_id, document_number, side, order_type, symbol, price,
		       quantity, remaining_quantity, valid_until, status, created_at
		FROM orders
		WHERE status = ? AND valid_until > ?
		ORDER BY created_at ASC`, int(domain.Open), now)
	if err != nil {
		return nil, fmt.Errorf("persistence: load open orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// FetchOrder is the one-shot durable fallback used by lookup for
// orders absent from memory after a restart (§4.3).
func (s *Store) FetchOrder(id uuid.UUID) (*domain.Order, error) {
	row := s.db.QueryRow(`
		SELECT id, broker_id, document_number, side, order_type, symbol, price,
		       quantity, remaining_quantity, valid_until, status, created_at
		FROM orders WHERE id = ?`, id.String())
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var idStr, brokerStr, doc, symbol string
	var side, orderType, status int
	var price, validUntil sql.NullInt64
	var quantity, remaining uint64
	var createdAt int64

	if err := row.Scan(&idStr, &brokerStr, &doc, &side, &orderType, &symbol, &price,
		&quantity, &remaining, &validUntil, &status, &createdAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse order id: %w", err)
	}
	brokerID, err := uuid.Parse(brokerStr)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse broker id: %w", err)
	}

	o := &domain.Order{
		ID:                id,
		BrokerID:          brokerID,
		DocumentNumber:    doc,
		Side:              domain.Side(side),
		Type:              domain.Type(orderType),
		Symbol:            symbol,
		Quantity:          quantity,
		RemainingQuantity: remaining,
		Status:            domain.Status(status),
		CreatedAt:         time.Unix(0, createdAt).UTC(),
	}
	if price.Valid {
		o.Price = price.Int64
	}
	if validUntil.Valid {
		o.ValidUntil = time.Unix(0, validUntil.Int64).UTC()
	}
	return o, nil
}

func (s *Store) loadTradesForOrders(ids []uuid.UUID) ([]*domain.Trade, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id.String())
	}
	query := fmt.Sprintf(`
		SELECT id, buy_order_id, sell_order_id, symbol, price, quantity, executed_at
		FROM trades WHERE buy_order_id IN (%s) OR sell_order_id IN (%s)`, placeholders, placeholders)
	rows, err := s.db.Query(query, append(append([]any{}, args...), args...)...)
	if err != nil {
		return nil, fmt.Errorf("persistence: load trades: %w", err)
	}
	defer rows.Close()

	var out []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (*domain.Trade, error) {
	var idStr, buyStr, sellStr, symbol string
	var price int64
	var quantity uint64
	var executedAt int64
	if err := rows.Scan(&idStr, &buyStr, &sellStr, &symbol, &price, &quantity, &executedAt); err != nil {
		return nil, fmt.Errorf("persistence: scan trade: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse trade id: %w", err)
	}
	buyID, err := uuid.Parse(buyStr)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse buy order id: %w", err)
	}
	sellID, err := uuid.Parse(sellStr)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse sell order id: %w", err)
	}
	return &domain.Trade{
		ID: id, BuyOrderID: buyID, SellOrderID: sellID, Symbol: symbol,
		Price: price, Quantity: quantity, ExecutedAt: time.Unix(0, executedAt).UTC(),
	}, nil
}

// loadRecentPrices loads, per symbol, up to capacity most recent trade
// prices ordered oldest-first so they can be pushed straight into a
// fresh priceRing in arrival order.
func (s *Store) loadRecentPrices(capacity int) (map[string][]int64, error) {
	symbols, err := s.distinctTradeSymbols()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]int64, len(symbols))
	for _, symbol := range symbols {
		rows, err := s.db.Query(`
			SELECT price FROM (
				SELECT price, executed_at FROM trades WHERE symbol = ?
				ORDER BY executed_at DESC LIMIT ?
			) ORDER BY executed_at ASC`, symbol, capacity)
		if err != nil {
			return nil, fmt.Errorf("persistence: load recent prices for %s: %w", symbol, err)
		}
		var prices []int64
		for rows.Next() {
			var p int64
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return nil, fmt.Errorf("persistence: scan recent price: %w", err)
			}
			prices = append(prices, p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
		out[symbol] = prices
	}
	return out, nil
}

func (s *Store) distinctTradeSymbols() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT symbol FROM trades`)
	if err != nil {
		return nil, fmt.Errorf("persistence: distinct symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("persistence: scan symbol: %w", err)
		}
		out = append(out, symbol)
	}
	return out, rows.Err()
}
