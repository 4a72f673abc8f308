package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stagepass/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	ticketdomain "github.com/smallbiznis/stagepass/internal/ticket/domain"
	"go.uber.org/zap"
)

const rateLimitReasonUserRate = "user-rate"

type purchaseTicketRequest struct {
	EventID      string `json:"eventId"`
	ReferralCode string `json:"referralCode"`
}

type purchaseTicketResponse struct {
	ClientToken string          `json:"clientToken"`
	TicketID    snowflake.ID    `json:"ticketId"`
	Price       decimal.Decimal `json:"price"`
	PriceCents  int64           `json:"priceCents"`
	IsPromo     bool            `json:"isPromo"`
}

func (s *Server) PurchaseTicket(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req purchaseTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	eventID, err := parseSnowflakeID(req.EventID)
	if err != nil {
		AbortWithError(c, newValidationError("eventId", "invalid_event", "eventId is required"))
		return
	}

	result, err := s.ticketSvc.Purchase(c.Request.Context(), ticketdomain.PurchaseRequest{
		EventID:      eventID,
		UserID:       userID,
		ReferralCode: strings.TrimSpace(req.ReferralCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, purchaseTicketResponse{
		ClientToken: result.ClientToken,
		TicketID:    result.TicketID,
		Price:       decimal.New(result.Price, -2),
		PriceCents:  result.Price,
		IsPromo:     result.IsPromo,
	})
}

// PurchaseRateLimit throttles purchase attempts per authenticated user.
func (s *Server) PurchaseRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.purchaseLimiter == nil {
			c.Next()
			return
		}
		userID, ok := userIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.purchaseLimiter.AllowUser(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("purchase rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if result != nil && !result.Allowed {
			retryAfter := 1
			if result.RetryAfter > 0 {
				retryAfter = int(math.Ceil(result.RetryAfter.Seconds()))
			}
			denyRateLimit(c, endpoint, rateLimitReasonUserRate, retryAfter, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyRateLimit(c *gin.Context, endpoint, reason string, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("purchase rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, reason, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
