package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Adapters   []paymentdomain.Adapter `group:"payment_adapters"`
	Reconciler paymentdomain.Reconciler
}

type Service struct {
	log        *zap.Logger
	adapters   map[string]paymentdomain.Adapter
	reconciler paymentdomain.Reconciler
}

func NewService(p Params) paymentdomain.Service {
	adapters := make(map[string]paymentdomain.Adapter, len(p.Adapters))
	for _, adapter := range p.Adapters {
		if adapter == nil {
			continue
		}
		adapters[strings.ToLower(adapter.Provider())] = adapter
	}
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		adapters:   adapters,
		reconciler: p.Reconciler,
	}
}

// IngestWebhook verifies the delivery before reading it, then hands the
// canonical event to the reconciler. Ignored and already-applied events are
// acknowledged so the processor stops redelivering them.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, ok := s.adapters[provider]
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook.verify.failed", zap.String("provider", provider), zap.Error(err))
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("webhook.event.ignored", zap.String("provider", provider))
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	// ErrIdempotencyViolation reaches the caller so it can acknowledge the
	// redelivery as a duplicate.
	err = s.reconciler.Apply(ctx, event)
	if errors.Is(err, paymentdomain.ErrEventIgnored) {
		return nil
	}
	return err
}
