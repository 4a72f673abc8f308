package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
)

type createEventRequest struct {
	Title       string `json:"title"`
	TicketPrice int64  `json:"ticketPrice"`
	HappyHour   bool   `json:"happyHour"`
	ScheduledAt string `json:"scheduledAt"`
	Capacity    *int64 `json:"capacity"`
}

type updateEventPriceRequest struct {
	TicketPrice int64 `json:"ticketPrice"`
	HappyHour   bool  `json:"happyHour"`
}

func (s *Server) CreateEvent(c *gin.Context) {
	artistID, ok := artistIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	scheduledAt, err := parseOptionalTime(req.ScheduledAt)
	if err != nil || scheduledAt == nil {
		AbortWithError(c, newValidationError("scheduledAt", "invalid_scheduled_at", "scheduledAt must be RFC3339"))
		return
	}

	event, err := s.eventSvc.Create(c.Request.Context(), eventdomain.CreateEventRequest{
		ArtistID:    artistID,
		Title:       strings.TrimSpace(req.Title),
		TicketPrice: req.TicketPrice,
		HappyHour:   req.HappyHour,
		ScheduledAt: *scheduledAt,
		Capacity:    req.Capacity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

func (s *Server) UpdateEventPrice(c *gin.Context) {
	artistID, ok := artistIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}
	eventID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req updateEventPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.eventSvc.UpdatePrice(c.Request.Context(), eventdomain.UpdatePriceRequest{
		EventID:     eventID,
		ArtistID:    artistID,
		TicketPrice: req.TicketPrice,
		HappyHour:   req.HappyHour,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": event})
}

// TransitionEvent moves an owned event to the given status.
func (s *Server) TransitionEvent(to eventdomain.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID, ok := artistIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		eventID, err := parseSnowflakeID(c.Param("id"))
		if err != nil {
			AbortWithError(c, ErrNotFound)
			return
		}

		event, err := s.eventSvc.Transition(c.Request.Context(), eventdomain.TransitionRequest{
			EventID:  eventID,
			ArtistID: artistID,
			To:       to,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": event})
	}
}
