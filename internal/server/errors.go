package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/stagepass/internal/affiliate/domain"
	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/smallbiznis/stagepass/internal/pricing"
	"github.com/smallbiznis/stagepass/internal/providers/stripe"
	"github.com/smallbiznis/stagepass/internal/ratelimit"
	ticketdomain "github.com/smallbiznis/stagepass/internal/ticket/domain"
	tipdomain "github.com/smallbiznis/stagepass/internal/tip/domain"
	"github.com/smallbiznis/stagepass/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var validationErrors = []error{
	ErrInvalidRequest,
	ticketdomain.ErrInvalidUser,
	ticketdomain.ErrInvalidEvent,
	eventdomain.ErrInvalidTitle,
	eventdomain.ErrInvalidSchedule,
	eventdomain.ErrInvalidCapacity,
	pricing.ErrHappyHourSlot,
	pricing.ErrPriceOutOfBounds,
	pricing.ErrInvalidPrice,
	pricing.ErrUnknownTier,
	affiliatedomain.ErrInvalidUser,
	tipdomain.ErrInvalidUser,
	tipdomain.ErrInvalidArtist,
	tipdomain.ErrAmountTooSmall,
	artistdomain.ErrInvalidTier,
	payoutdomain.ErrInvalidStatus,
	pagination.ErrInvalidPageToken,
	paymentdomain.ErrInvalidProvider,
	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
}

var conflictErrors = []error{
	ErrConflict,
	ticketdomain.ErrEventNotOnSale,
	ticketdomain.ErrSoldOut,
	ticketdomain.ErrDuplicateTicket,
	ticketdomain.ErrArtistNotPayable,
	tipdomain.ErrArtistNotPayable,
	eventdomain.ErrInvalidTransition,
	eventdomain.ErrNotEditable,
	eventdomain.ErrCapacityReached,
	affiliatedomain.ErrAlreadyAffiliate,
	affiliatedomain.ErrParentInactive,
	ratelimit.ErrLockHeld,
}

var notFoundErrors = []error{
	ErrNotFound,
	eventdomain.ErrNotFound,
	artistdomain.ErrNotFound,
	affiliatedomain.ErrParentNotFound,
	paymentdomain.ErrProviderNotFound,
	paymentdomain.ErrTicketNotFound,
	paymentdomain.ErrTipNotFound,
	gorm.ErrRecordNotFound,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := matchSentinel(err, validationErrors); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, eventdomain.ErrNotOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	}

	if code, ok := matchSentinel(err, conflictErrors); ok {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: code,
		}
	}
	if code, ok := matchSentinel(err, notFoundErrors); ok {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: strings.ReplaceAll(code, "_", " "),
		}
	}

	switch {
	case isUpstreamError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "payment processor unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, stripe.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns (error_type, error_code) for request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if status == http.StatusConflict {
		code = payload.Message
	}
	return payload.Type, code
}

func matchSentinel(err error, sentinels []error) (string, bool) {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isUpstreamError(err error) bool {
	return errors.Is(err, paymentdomain.ErrUpstream) ||
		errors.Is(err, context.DeadlineExceeded)
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case tipdomain.ErrAmountTooSmall.Error():
		return "tip amount is below the minimum"
	case pricing.ErrPriceOutOfBounds.Error():
		return "price is outside the tier bounds"
	case pricing.ErrHappyHourSlot.Error():
		return "event is not scheduled in the happy-hour slot"
	default:
		return "invalid value"
	}
}
