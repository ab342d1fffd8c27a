package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trade is an immutable execution record. Price is always the resting
// (passive) participant's price, never the aggressor's.
type Trade struct {
	ID          uuid.UUID
	Symbol      string
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	Price       int64
	Quantity    uint64
	ExecutedAt  time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade[%s] %s buy=%s sell=%s price=%d qty=%d at=%v",
		t.ID, t.Symbol, t.BuyOrderID, t.SellOrderID, t.Price, t.Quantity,
		t.ExecutedAt.Format(time.RFC3339),
	)
}
