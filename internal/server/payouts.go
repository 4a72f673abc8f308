package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/stagepass/internal/observability/logger"
	payoutdomain "github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/smallbiznis/stagepass/pkg/db/pagination"
	"go.uber.org/zap"
)

// RunPayouts settles the events that ended on the day lying the payout
// delay before the run date. ?date=YYYY-MM-DD overrides the run date so an
// operator can replay a missed day.
func (s *Server) RunPayouts(c *gin.Context) {
	now := s.clock.Now()
	date, err := parseOptionalDate(c.Query("date"), s.cfg.Location())
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
		return
	}
	if date != nil {
		now = *date
	}

	report, err := s.payoutSvc.RunSettlement(c.Request.Context(), now)
	if err != nil && report.EventsScanned == 0 {
		AbortWithError(c, err)
		return
	}
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("payout.run.partial",
			zap.String("day", report.Day),
			zap.Int("failed", report.Failed),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) ListPayouts(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.List(c.Request.Context(), payoutdomain.ListRequest{
		Status:     strings.TrimSpace(c.Query("status")),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Payouts,
		"page_info": resp.PageInfo,
	})
}
