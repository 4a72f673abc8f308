package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
)

const (
	providerName = "stripe"

	// DefaultTolerance bounds the age of a signed delivery.
	DefaultTolerance = 5 * time.Minute
)

type Adapter struct {
	webhookSecret string
	clock         clock.Clock
	tolerance     time.Duration
}

func NewAdapter(cfg config.Config, clk clock.Clock) (*Adapter, error) {
	secret := strings.TrimSpace(cfg.Stripe.WebhookSecret)
	if secret == "" && cfg.IsProduction() {
		return nil, errors.New("stripe webhook secret is required in production")
	}
	return &Adapter{
		webhookSecret: secret,
		clock:         clk,
		tolerance:     DefaultTolerance,
	}, nil
}

func (a *Adapter) Provider() string {
	return providerName
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	if a.tolerance > 0 {
		age := a.now().Sub(time.Unix(signedAt, 0))
		if age > a.tolerance || age < -a.tolerance {
			return paymentdomain.ErrInvalidSignature
		}
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) now() time.Time {
	if a.clock == nil {
		return time.Now().UTC()
	}
	return a.clock.Now()
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var (
		parsed *paymentdomain.PaymentEvent
		err    error
	)
	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		parsed, err = a.parsePaymentIntent(event, paymentdomain.EventTypePaymentSucceeded)
	case "payment_intent.payment_failed":
		parsed, err = a.parsePaymentIntent(event, paymentdomain.EventTypePaymentFailed)
	case "charge.refunded":
		parsed, err = a.parseRefund(event)
	case "customer.subscription.created", "customer.subscription.updated":
		parsed, err = a.parseSubscription(event, paymentdomain.EventTypeSubscriptionUpdated)
	case "customer.subscription.deleted":
		parsed, err = a.parseSubscription(event, paymentdomain.EventTypeSubscriptionDeleted)
	case "account.updated":
		parsed, err = a.parseAccount(event)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	if err != nil {
		return nil, err
	}

	parsed.Provider = providerName
	parsed.ProviderEventID = event.ID
	parsed.RawPayload = payload
	if parsed.OccurredAt.IsZero() {
		parsed.OccurredAt = timestamp(0, event.Created)
	}
	return parsed, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID             string         `json:"id"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type stripeCharge struct {
	ID             string         `json:"id"`
	PaymentIntent  string         `json:"payment_intent"`
	Amount         int64          `json:"amount"`
	AmountRefunded int64          `json:"amount_refunded"`
	Currency       string         `json:"currency"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type stripeSubscription struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	CurrentPeriodEnd int64          `json:"current_period_end"`
	Created          int64          `json:"created"`
	Metadata         map[string]any `json:"metadata"`
	Items            struct {
		Data []struct {
			Price struct {
				LookupKey string `json:"lookup_key"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeAccount struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

func (a *Adapter) parsePaymentIntent(event stripeEvent, eventType string) (*paymentdomain.PaymentEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	parsed := &paymentdomain.PaymentEvent{
		ProviderPaymentID: intent.ID,
		Type:              eventType,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:        timestamp(intent.Created, event.Created),
	}
	applyPaymentMetadata(parsed, intent.Metadata)
	return parsed, nil
}

func (a *Adapter) parseRefund(event stripeEvent) (*paymentdomain.PaymentEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	// Tickets and tips are keyed by payment intent, not charge.
	if strings.TrimSpace(charge.PaymentIntent) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := charge.Amount
	if charge.AmountRefunded > 0 {
		amount = charge.AmountRefunded
	}

	parsed := &paymentdomain.PaymentEvent{
		ProviderPaymentID: strings.TrimSpace(charge.PaymentIntent),
		Type:              paymentdomain.EventTypeRefunded,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(charge.Currency)),
		OccurredAt:        timestamp(0, event.Created),
	}
	applyPaymentMetadata(parsed, charge.Metadata)
	return parsed, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, eventType string) (*paymentdomain.PaymentEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	change := &paymentdomain.SubscriptionChange{
		ProviderSubscriptionID: sub.ID,
		ArtistID:               parseMetadataID(sub.Metadata, paymentdomain.MetadataArtistID),
		Tier:                   strings.ToLower(readMetadataValue(sub.Metadata, paymentdomain.MetadataTier)),
		Status:                 strings.ToLower(strings.TrimSpace(sub.Status)),
	}
	if change.Tier == "" && len(sub.Items.Data) > 0 {
		change.Tier = strings.ToLower(strings.TrimSpace(sub.Items.Data[0].Price.LookupKey))
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		change.CurrentPeriodEnd = &end
	}

	return &paymentdomain.PaymentEvent{
		ProviderPaymentID: sub.ID,
		Type:              eventType,
		OccurredAt:        timestamp(0, event.Created),
		Subscription:      change,
	}, nil
}

func (a *Adapter) parseAccount(event stripeEvent) (*paymentdomain.PaymentEvent, error) {
	var account stripeAccount
	if err := json.Unmarshal(event.Data.Object, &account); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(account.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.PaymentEvent{
		ProviderPaymentID: account.ID,
		Type:              paymentdomain.EventTypeAccountUpdated,
		OccurredAt:        timestamp(0, event.Created),
		Account: &paymentdomain.AccountChange{
			AccountRef:       account.ID,
			ChargesEnabled:   account.ChargesEnabled,
			PayoutsEnabled:   account.PayoutsEnabled,
			DetailsSubmitted: account.DetailsSubmitted,
		},
	}, nil
}

func applyPaymentMetadata(event *paymentdomain.PaymentEvent, metadata map[string]any) {
	event.Kind = strings.ToLower(readMetadataValue(metadata, paymentdomain.MetadataKind))
	event.TicketID = parseMetadataID(metadata, paymentdomain.MetadataTicketID)
	event.TipID = parseMetadataID(metadata, paymentdomain.MetadataTipID)
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func parseMetadataID(metadata map[string]any, key string) *snowflake.ID {
	raw := readMetadataValue(metadata, key)
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return nil
	}
	return &id
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}
