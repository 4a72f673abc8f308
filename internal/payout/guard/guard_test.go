package guard

import (
	"testing"
	"time"

	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	payoutdomain "github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnsureEventSettleable(t *testing.T) {
	ended := time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC)
	assert.NoError(t, EnsureEventSettleable(eventdomain.Event{Status: eventdomain.StatusEnded, EndedAt: &ended}))
	assert.ErrorIs(t, EnsureEventSettleable(eventdomain.Event{Status: eventdomain.StatusEnded}), ErrEventNotEnded)
	assert.ErrorIs(t, EnsureEventSettleable(eventdomain.Event{Status: eventdomain.StatusLive, EndedAt: &ended}), ErrEventNotEnded)
}

func TestEnsureNotSettled(t *testing.T) {
	assert.NoError(t, EnsureNotSettled(nil))
	assert.NoError(t, EnsureNotSettled(&payoutdomain.Payout{Status: payoutdomain.StatusFailed}))
	assert.ErrorIs(t, EnsureNotSettled(&payoutdomain.Payout{Status: payoutdomain.StatusProcessing}), ErrAlreadySettled)
}

func TestEnsureArtistPayable(t *testing.T) {
	account := "acct_1"
	assert.NoError(t, EnsureArtistPayable(artistdomain.Artist{PayoutAccountRef: &account}))
	assert.ErrorIs(t, EnsureArtistPayable(artistdomain.Artist{}), ErrNoPayoutAccount)
	assert.ErrorIs(t, EnsurePositiveAmount(0), ErrNonPositiveAmount)
	assert.NoError(t, EnsurePositiveAmount(1))
}
