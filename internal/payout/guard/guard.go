// Package guard holds the preconditions a settlement run checks before
// moving money for an event.
package guard

import (
	"errors"

	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	payoutdomain "github.com/smallbiznis/stagepass/internal/payout/domain"
)

var (
	ErrEventNotEnded     = errors.New("event_not_ended")
	ErrAlreadySettled    = errors.New("payout_already_settled")
	ErrNoPayoutAccount   = errors.New("artist_missing_payout_account")
	ErrNonPositiveAmount = errors.New("payout_amount_not_positive")
)

func EnsureEventSettleable(event eventdomain.Event) error {
	if event.Status != eventdomain.StatusEnded || event.EndedAt == nil {
		return ErrEventNotEnded
	}
	return nil
}

// EnsureNotSettled passes when no payout exists yet or the previous attempt
// failed.
func EnsureNotSettled(existing *payoutdomain.Payout) error {
	if existing != nil && existing.Status != payoutdomain.StatusFailed {
		return ErrAlreadySettled
	}
	return nil
}

func EnsureArtistPayable(artist artistdomain.Artist) error {
	if artist.PayoutAccount() == "" {
		return ErrNoPayoutAccount
	}
	return nil
}

func EnsurePositiveAmount(amount int64) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}
