// Package api is the thin operation surface of §6: it applies the
// admission validation rules of §7 and then calls into the matching
// engine. It is what an outer HTTP (or, in this repository, the TCP
// driver in internal/server) layer is expected to call once it has
// already authenticated the caller — auth itself is out of scope.
package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"bourse/internal/domain"
	"bourse/internal/engine"
	"bourse/internal/registry"
)

// store is the subset of persistence.Store register_broker needs.
type store interface {
	InsertBroker(*domain.Broker) error
}

// API wires the operation surface to its collaborators.
type API struct {
	engine   *engine.Engine
	registry *registry.Registry
	store    store

	defaultDepth  int
	defaultWindow int
}

// New wires the operation surface. defaultDepth/defaultWindow are the
// configured fallbacks applied when a caller omits depth/window on
// get_book/get_price; <= 0 falls back to the engine's own built-in
// defaults.
func New(eng *engine.Engine, reg *registry.Registry, st store, defaultDepth, defaultWindow int) *API {
	if defaultDepth <= 0 {
		defaultDepth = engine.DefaultDepth
	}
	if defaultWindow <= 0 {
		defaultWindow = engine.DefaultWindow
	}
	return &API{engine: eng, registry: reg, store: st, defaultDepth: defaultDepth, defaultWindow: defaultWindow}
}

// SubmitOrderRequest is the caller-supplied half of submit_order; the
// engine assigns everything else.
type SubmitOrderRequest struct {
	BrokerID       uuid.UUID
	DocumentNumber string
	Side           domain.Side
	Type           domain.Type
	Symbol         string
	Price          int64
	HasPrice       bool
	Quantity       uint64
	ValidUntil     time.Time
	HasValidUntil  bool
}

// SubmitOrder validates the request per §7, then submits it to the
// engine. A validation failure mutates nothing.
func (a *API) SubmitOrder(req SubmitOrderRequest, now time.Time) (uuid.UUID, []*domain.Trade, error) {
	if err := validateSubmit(req, now); err != nil {
		return uuid.Nil, nil, err
	}
	if _, ok := a.registry.Get(req.BrokerID); !ok {
		return uuid.Nil, nil, domain.ErrBrokerNotFound
	}

	id, trades := a.engine.SubmitOrder(engine.NewOrderInput{
		BrokerID:       req.BrokerID,
		DocumentNumber: req.DocumentNumber,
		Side:           req.Side,
		Type:           req.Type,
		Symbol:         req.Symbol,
		Price:          req.Price,
		Quantity:       req.Quantity,
		ValidUntil:     req.ValidUntil,
	})
	return id, trades, nil
}

// CancelOrder cancels the caller's open limit order and is otherwise a
// silent no-op per §4.2 — it never returns an error for ownership
// mismatch, missing order, or an already-closed order, by contract.
func (a *API) CancelOrder(brokerID, orderID uuid.UUID) {
	a.engine.Cancel(brokerID, orderID)
}

// GetOrder enforces the forbidden-on-foreign-order read policy chosen
// for the Open Question in §9: lookups are the one place where
// ownership mismatch is reported, since leaking "not found" vs
// "forbidden" on a read does not help an attacker place trades the way
// a talkative cancel would.
func (a *API) GetOrder(brokerID, orderID uuid.UUID) (*domain.Order, []*domain.Trade, error) {
	order, trades, err := a.engine.Lookup(orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.BrokerID != brokerID {
		return nil, nil, domain.ErrForbidden
	}
	return order, trades, nil
}

// GetBook is order_book(symbol, depth). depth <= 0 takes the
// configured default instead of the engine's built-in one.
func (a *API) GetBook(symbol string, depth int) (engine.OrderBookView, error) {
	if depth <= 0 {
		depth = a.defaultDepth
	}
	return a.engine.OrderBook(symbol, depth)
}

// GetPrice is price(symbol, window). window <= 0 takes the configured
// default instead of the engine's built-in one.
func (a *API) GetPrice(symbol string, window int) (engine.PriceStats, error) {
	if window <= 0 {
		window = a.defaultWindow
	}
	return a.engine.Price(symbol, window)
}

// GetBalance is balance(broker_id).
func (a *API) GetBalance(brokerID uuid.UUID) (int64, error) {
	return a.engine.Balance(brokerID)
}

// RegisterBrokerRequest is the admin-gated broker-registration input.
type RegisterBrokerRequest struct {
	Name       string
	WebhookURL string
}

// ErrEmptyName rejects a broker with no display name.
var ErrEmptyName = errors.New("api: broker name must not be empty")

// RegisterBroker creates a broker record, persists it synchronously
// (registration is rare and admin-gated, so it bypasses the async
// pipeline entirely), installs it in the registry, and returns the
// generated API key exactly once — the hash is all that is ever
// stored.
func (a *API) RegisterBroker(req RegisterBrokerRequest) (uuid.UUID, string, error) {
	if req.Name == "" {
		return uuid.Nil, "", ErrEmptyName
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return uuid.Nil, "", err
	}

	broker := &domain.Broker{
		ID:             uuid.New(),
		Name:           req.Name,
		WebhookURL:     req.WebhookURL,
		CredentialHash: sha256.Sum256([]byte(apiKey)),
	}

	if err := a.store.InsertBroker(broker); err != nil {
		return uuid.Nil, "", err
	}
	a.registry.Register(broker)

	return broker.ID, apiKey, nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
