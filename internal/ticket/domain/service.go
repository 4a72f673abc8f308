package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type PurchaseRequest struct {
	EventID      snowflake.ID
	UserID       string
	ReferralCode string
}

type PurchaseResult struct {
	ClientToken string       `json:"clientToken"`
	TicketID    snowflake.ID `json:"ticketId"`
	Price       int64        `json:"priceCents"`
	IsPromo     bool         `json:"isPromo"`
}

type Service interface {
	Purchase(context.Context, PurchaseRequest) (PurchaseResult, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventNotOnSale   = errors.New("event_not_on_sale")
	ErrSoldOut          = errors.New("sold_out")
	ErrDuplicateTicket  = errors.New("duplicate_ticket")
	ErrArtistNotPayable = errors.New("artist_not_payable")
)
