package api

import (
	"time"

	"bourse/internal/domain"
)

const (
	maxSymbolLength   = 10
	maxDocumentLength = 20
)

// validateSubmit applies the admission rules of §7. It never touches
// the engine or registry; it only rejects structurally bad requests.
func validateSubmit(req SubmitOrderRequest, now time.Time) error {
	if len(req.Symbol) == 0 || len(req.Symbol) > maxSymbolLength {
		return domain.ErrSymbolTooLong
	}
	if len(req.DocumentNumber) > maxDocumentLength {
		return domain.ErrDocumentTooLong
	}
	if req.Quantity == 0 {
		return domain.ErrInvalidQuantity
	}

	switch req.Type {
	case domain.Limit:
		if !req.HasPrice || req.Price <= 0 {
			return domain.ErrInvalidPrice
		}
		if !req.HasValidUntil || !req.ValidUntil.After(now) {
			return domain.ErrInvalidValidUntil
		}
	case domain.Market:
		if req.HasPrice {
			return domain.ErrUnexpectedPrice
		}
	}

	return nil
}
