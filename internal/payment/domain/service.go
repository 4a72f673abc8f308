package domain

import (
	"context"
	"errors"
	"net/http"
)

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// Reconciler applies canonical payment events.
type Reconciler interface {
	Apply(ctx context.Context, event *PaymentEvent) error
}

var (
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrProviderNotFound     = errors.New("provider_not_found")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidEvent         = errors.New("invalid_event")
	ErrEventIgnored         = errors.New("event_ignored")
	ErrIdempotencyViolation = errors.New("idempotency_violation")
	ErrTicketNotFound       = errors.New("ticket_not_found")
	ErrTipNotFound          = errors.New("tip_not_found")
	ErrUpstream             = errors.New("upstream_error")
)
