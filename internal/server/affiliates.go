package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/stagepass/internal/affiliate/domain"
	tipdomain "github.com/smallbiznis/stagepass/internal/tip/domain"
)

type registerAffiliateRequest struct {
	ParentCode string `json:"parentCode"`
}

type createTipRequest struct {
	ArtistID string `json:"artistId"`
	Amount   int64  `json:"amountCents"`
}

func (s *Server) RegisterAffiliate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req registerAffiliateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	affiliate, err := s.affiliateSvc.Register(c.Request.Context(), affiliatedomain.RegisterRequest{
		UserID:     userID,
		ParentCode: strings.TrimSpace(req.ParentCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": affiliate})
}

func (s *Server) CreateTip(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	artistID, err := parseSnowflakeID(req.ArtistID)
	if err != nil {
		AbortWithError(c, newValidationError("artistId", "invalid_artist", "artistId is required"))
		return
	}

	result, err := s.tipSvc.Create(c.Request.Context(), tipdomain.CreateRequest{
		ArtistID: artistID,
		UserID:   userID,
		Amount:   req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
