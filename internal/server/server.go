package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"bourse/internal/api"
	"bourse/internal/domain"
)

const (
	defaultNWorkers = 32
	maxLineLength   = 64 * 1024
	writeDeadline   = 5 * time.Second
)

var errImproperConversion = errors.New("server: improper task conversion")

// Server is the TCP driver: it accepts connections, hands each to the
// worker pool, and translates JSON-Lines requests into calls against
// the operation surface.
type Server struct {
	address string
	api     *api.API
	now     func() time.Time

	pool   WorkerPool
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func New(address string, a *api.API) *Server {
	return &Server{
		address: address,
		api:     a,
		now:     time.Now,
		pool:    NewWorkerPool(defaultNWorkers),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Run serves connections until ctx is cancelled. It is meant to be run
// under a tomb.Tomb via t.Go, matching the supervision idiom used
// throughout this codebase's background goroutines.
func (s *Server) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer listener.Close()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	log.Info().Str("address", s.address).Msg("server listening")

	t.Go(func() error {
		<-t.Dying()
		return listener.Close()
	})

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return t.Wait()
			default:
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
		}
		s.addConn(conn)
		s.pool.AddTask(conn)
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// handleConnection owns one TCP connection for its entire lifetime: it
// reads JSON-Lines requests until EOF, a protocol error, or the tomb
// starts dying, writing one JSON-Lines response per request.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return errImproperConversion
	}
	defer s.removeConn(conn)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		resp := Response{}
		if err := json.Unmarshal(line, &req); err != nil {
			resp.Error = "malformed request: " + err.Error()
		} else {
			resp.RequestID = req.RequestID
			s.dispatch(&req, &resp)
		}

		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("server: write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection read error")
	}
	return nil
}

func (s *Server) dispatch(req *Request, resp *Response) {
	switch req.Op {
	case OpSubmitOrder:
		s.submitOrder(req, resp)
	case OpCancelOrder:
		s.api.CancelOrder(req.BrokerID, req.OrderID)
	case OpGetOrder:
		s.getOrder(req, resp)
	case OpGetBook:
		s.getBook(req, resp)
	case OpGetPrice:
		s.getPrice(req, resp)
	case OpGetBalance:
		s.getBalance(req, resp)
	case OpRegisterBroker:
		s.registerBroker(req, resp)
	default:
		resp.Error = fmt.Sprintf("unknown op %q", req.Op)
	}
}

func (s *Server) submitOrder(req *Request, resp *Response) {
	side, err := parseSide(req.Side)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	typ, err := parseType(req.Type)
	if err != nil {
		resp.Error = err.Error()
		return
	}

	in := api.SubmitOrderRequest{
		BrokerID:       req.BrokerID,
		DocumentNumber: req.DocumentNumber,
		Side:           side,
		Type:           typ,
		Symbol:         req.Symbol,
		Quantity:       req.Quantity,
	}
	if req.Price != nil {
		in.HasPrice = true
		in.Price = *req.Price
	}
	if req.ValidUntil != nil {
		in.HasValidUntil = true
		in.ValidUntil = *req.ValidUntil
	}

	id, trades, err := s.api.SubmitOrder(in, s.now())
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.OrderID = id
	resp.Trades = make([]TradeWire, len(trades))
	for i, tr := range trades {
		resp.Trades[i] = tradeWire(tr)
	}
}

func (s *Server) getOrder(req *Request, resp *Response) {
	order, _, err := s.api.GetOrder(req.BrokerID, req.OrderID)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.Order = orderWire(order)
}

func (s *Server) getBook(req *Request, resp *Response) {
	view, err := s.api.GetBook(req.Symbol, req.Depth)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	book := &BookWire{Symbol: req.Symbol}
	for _, lvl := range view.Bids {
		book.Bids = append(book.Bids, BookWireLevel{Price: lvl.Price, Quantity: lvl.TotalQty, OrderCount: lvl.OrderCount})
	}
	for _, lvl := range view.Asks {
		book.Asks = append(book.Asks, BookWireLevel{Price: lvl.Price, Quantity: lvl.TotalQty, OrderCount: lvl.OrderCount})
	}
	resp.Book = book
}

func (s *Server) getPrice(req *Request, resp *Response) {
	stats, err := s.api.GetPrice(req.Symbol, req.Window)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.Price = stats.LastPrice
	resp.AveragePrice = stats.AveragePrice
	resp.TradesInWindow = stats.TradesInWindow
}

func (s *Server) getBalance(req *Request, resp *Response) {
	bal, err := s.api.GetBalance(req.BrokerID)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.Balance = bal
}

func (s *Server) registerBroker(req *Request, resp *Response) {
	id, key, err := s.api.RegisterBroker(api.RegisterBrokerRequest{Name: req.Name, WebhookURL: req.WebhookURL})
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.OrderID = id // reused as the new broker's ID
	resp.APIKey = key
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "bid", "buy":
		return domain.Bid, nil
	case "ask", "sell":
		return domain.Ask, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

func parseType(s string) (domain.Type, error) {
	switch s {
	case "limit":
		return domain.Limit, nil
	case "market":
		return domain.Market, nil
	default:
		return 0, fmt.Errorf("invalid order type %q", s)
	}
}

func orderWire(o *domain.Order) *OrderWire {
	if o == nil {
		return nil
	}
	return &OrderWire{
		ID:                o.ID,
		BrokerID:          o.BrokerID,
		DocumentNumber:    o.DocumentNumber,
		Side:              o.Side.String(),
		Type:              o.Type.String(),
		Symbol:            o.Symbol,
		Price:             o.Price,
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		Status:            o.Status.String(),
		CreatedAt:         o.CreatedAt,
	}
}

func tradeWire(t *domain.Trade) TradeWire {
	return TradeWire{
		ID:          t.ID,
		Symbol:      t.Symbol,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price,
		Quantity:    t.Quantity,
		ExecutedAt:  t.ExecutedAt,
	}
}

func (s *Server) addConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) removeConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
