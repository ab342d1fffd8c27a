package persistence

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// webhookPayload is bit-exact with §6's wire contract so existing
// broker integrations do not need to change.
type webhookPayload struct {
	Event                  string `json:"event"`
	TradeID                string `json:"trade_id"`
	OrderID                string `json:"order_id"`
	Symbol                 string `json:"symbol"`
	Side                   string `json:"side"`
	Price                  int64  `json:"price"`
	Quantity               uint64 `json:"quantity"`
	OrderRemainingQuantity uint64 `json:"order_remaining_quantity"`
	ExecutedAt             string `json:"executed_at"`
}

// webhookDispatcher fires one POST per participating broker with a
// configured endpoint. Delivery is at-most-once, best-effort: failures
// are logged, never retried, never surfaced to the submitting broker,
// per §4.4 step 4 and §7.
type webhookDispatcher struct {
	client *resty.Client
}

func newWebhookDispatcher(timeout time.Duration) *webhookDispatcher {
	client := resty.New().SetTimeout(timeout)
	return &webhookDispatcher{client: client}
}

// dispatch fires the buyer and seller reports for one committed trade.
// It is called from the flusher goroutine, never from the matching
// path, and never blocks the next flush tick: each POST runs in its
// own detached goroutine.
func (d *webhookDispatcher) dispatch(te TradeEvent) {
	executedAt := te.Trade.ExecutedAt.UTC().Format(time.RFC3339Nano)

	if te.Buyer.WebhookURL != "" {
		d.send(te.Buyer.WebhookURL, webhookPayload{
			Event: "trade_executed", TradeID: te.Trade.ID.String(), OrderID: te.Trade.BuyOrderID.String(),
			Symbol: te.Trade.Symbol, Side: "bid", Price: te.Trade.Price, Quantity: te.Trade.Quantity,
			OrderRemainingQuantity: te.BuyRem, ExecutedAt: executedAt,
		})
	}
	if te.Seller.WebhookURL != "" {
		d.send(te.Seller.WebhookURL, webhookPayload{
			Event: "trade_executed", TradeID: te.Trade.ID.String(), OrderID: te.Trade.SellOrderID.String(),
			Symbol: te.Trade.Symbol, Side: "ask", Price: te.Trade.Price, Quantity: te.Trade.Quantity,
			OrderRemainingQuantity: te.SellRem, ExecutedAt: executedAt,
		})
	}
}

func (d *webhookDispatcher) send(url string, payload webhookPayload) {
	go func() {
		resp, err := d.client.R().SetBody(payload).Post(url)
		if err != nil {
			log.Error().Err(err).Str("url", url).Msg("webhook dispatch failed")
			return
		}
		if resp.IsError() {
			log.Error().Str("url", url).Int("status", resp.StatusCode()).Msg("webhook rejected")
		}
	}()
}
