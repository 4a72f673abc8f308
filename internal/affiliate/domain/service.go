package domain

import (
	"context"
	"errors"
)

type RegisterRequest struct {
	UserID string
	// ParentCode is the referral code of the affiliate who recruited the
	// user, if any.
	ParentCode string
}

type Service interface {
	Register(context.Context, RegisterRequest) (Affiliate, error)
	// FindActiveByCode returns nil for unknown or inactive codes.
	FindActiveByCode(ctx context.Context, code string) (*Affiliate, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrAlreadyAffiliate = errors.New("already_affiliate")
	ErrParentNotFound   = errors.New("parent_affiliate_not_found")
	ErrParentInactive   = errors.New("parent_affiliate_inactive")
	ErrCodeExhausted    = errors.New("referral_code_generation_failed")
)
