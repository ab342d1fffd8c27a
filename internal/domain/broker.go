package domain

import "github.com/google/uuid"

// Broker is an exchange member. Balance is signed integer cents,
// cumulative (sells minus buys) over every trade the broker has
// participated in.
type Broker struct {
	ID             uuid.UUID
	Name           string
	WebhookURL     string
	Balance        int64
	CredentialHash [32]byte
}
