package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// Attribute keys that may carry user or payment identifiers never reach
// span storage.
var forbiddenAttributeKeys = map[attribute.Key]struct{}{
	"user_id":             {},
	"email":               {},
	"authorization":       {},
	"payment_intent_ref":  {},
	"payout_account_ref":  {},
	"referral_code":       {},
	"stripe_signature":    {},
	"http.request.header": {},
}

// ExtractContext pulls upstream trace context from carrier headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes whose key is on the deny list.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, denied := forbiddenAttributeKeys[attr.Key]; denied {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError strips processor secrets from error text before it is recorded
// on a span.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, prefix := range []string{"sk_live_", "sk_test_", "whsec_"} {
		if strings.Contains(msg, prefix) {
			return errors.New("redacted error")
		}
	}
	return err
}
