package domain

import "context"

// Processor is the outbound payment processor client.
type Processor interface {
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error)
	CancelAuthorization(ctx context.Context, authorizationID string) error
	CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error)
}

type AuthorizationRequest struct {
	Amount   int64
	Currency string
	// DestinationAccount receives the charge minus ApplicationFee.
	DestinationAccount string
	ApplicationFee     int64
	Metadata           map[string]string
	IdempotencyKey     string
}

type Authorization struct {
	ID          string
	ClientToken string
}

type TransferRequest struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	// CorrelationID is the payout id; it travels as transfer_group and metadata.
	CorrelationID  string
	IdempotencyKey string
}

type Transfer struct {
	ID string
}

const CurrencyEUR = "eur"
