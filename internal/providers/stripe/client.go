// Package stripe is the outbound processor client: destination-charge
// payment intents for purchases and tips, and transfers for payouts.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/stagepass/internal/config"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("processor_not_configured")

type paymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type transfer struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	apiKey  string
	apiBase string
	client  *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.Stripe.APIBase), "/")
	if apiBase == "" {
		apiBase = "https://api.stripe.com"
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.Stripe.SecretKey),
		apiBase: apiBase,
		client:  &http.Client{Timeout: cfg.Stripe.Timeout},
		log:     log.Named("stripe.client"),
	}
}

func (c *Client) CreateAuthorization(ctx context.Context, req paymentdomain.AuthorizationRequest) (paymentdomain.Authorization, error) {
	if req.Amount <= 0 || strings.TrimSpace(req.DestinationAccount) == "" {
		return paymentdomain.Authorization{}, fmt.Errorf("%w: invalid authorization request", paymentdomain.ErrUpstream)
	}
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("currency", currency(req.Currency))
	values.Set("payment_method_types[]", "card")
	values.Set("transfer_data[destination]", req.DestinationAccount)
	if req.ApplicationFee > 0 {
		values.Set("application_fee_amount", strconv.FormatInt(req.ApplicationFee, 10))
	}
	setMetadata(values, req.Metadata)

	var intent paymentIntent
	if err := c.doRequest(ctx, http.MethodPost, "/v1/payment_intents", values, req.IdempotencyKey, &intent); err != nil {
		return paymentdomain.Authorization{}, err
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return paymentdomain.Authorization{}, fmt.Errorf("%w: stripe_response_invalid", paymentdomain.ErrUpstream)
	}
	return paymentdomain.Authorization{ID: intent.ID, ClientToken: intent.ClientSecret}, nil
}

func (c *Client) CancelAuthorization(ctx context.Context, authorizationID string) error {
	authorizationID = strings.TrimSpace(authorizationID)
	if authorizationID == "" {
		return nil
	}
	var intent paymentIntent
	return c.doRequest(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(authorizationID)+"/cancel", url.Values{}, "", &intent)
}

func (c *Client) CreateTransfer(ctx context.Context, req paymentdomain.TransferRequest) (paymentdomain.Transfer, error) {
	if req.Amount <= 0 || strings.TrimSpace(req.DestinationAccount) == "" {
		return paymentdomain.Transfer{}, fmt.Errorf("%w: invalid transfer request", paymentdomain.ErrUpstream)
	}
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("currency", currency(req.Currency))
	values.Set("destination", req.DestinationAccount)
	if req.CorrelationID != "" {
		values.Set("transfer_group", req.CorrelationID)
		values.Set("metadata[payout_id]", req.CorrelationID)
	}

	var out transfer
	if err := c.doRequest(ctx, http.MethodPost, "/v1/transfers", values, req.IdempotencyKey, &out); err != nil {
		return paymentdomain.Transfer{}, err
	}
	if out.ID == "" {
		return paymentdomain.Transfer{}, fmt.Errorf("%w: stripe_response_invalid", paymentdomain.ErrUpstream)
	}
	return paymentdomain.Transfer{ID: out.ID}, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	var body io.Reader = strings.NewReader("")
	if values != nil {
		body = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr errorResponse
		message := "stripe_request_failed"
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err == nil && strings.TrimSpace(stripeErr.Error.Message) != "" {
			message = strings.TrimSpace(stripeErr.Error.Message)
		}
		c.log.Warn("stripe.request.failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", stripeErr.Error.Code),
		)
		return fmt.Errorf("%w: %s", paymentdomain.ErrUpstream, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrUpstream, err)
	}
	return nil
}

func currency(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return paymentdomain.CurrencyEUR
	}
	return value
}

func setMetadata(values url.Values, metadata map[string]string) {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values.Set("metadata["+key+"]", metadata[key])
	}
}
