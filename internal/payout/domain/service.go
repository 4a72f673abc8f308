package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/stagepass/pkg/db/pagination"
)

type ListRequest struct {
	Status string
	pagination.Pagination
}

type ListResponse struct {
	Payouts  []*Payout           `json:"payouts"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	// RunSettlement settles every event that ended on the calendar day
	// lying the configured delay before now.
	RunSettlement(ctx context.Context, now time.Time) (Report, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidStatus = errors.New("invalid_payout_status")
	ErrUnknownTier   = errors.New("unknown_tier_share")
)
