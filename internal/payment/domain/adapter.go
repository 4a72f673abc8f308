package domain

import (
	"context"
	"net/http"
)

// Adapter verifies and decodes inbound processor webhooks.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}
