// Package paymenttest provides a testify mock of the payment processor.
package paymenttest

import (
	"context"

	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/stretchr/testify/mock"
)

type Processor struct {
	mock.Mock
}

func (m *Processor) CreateAuthorization(ctx context.Context, req paymentdomain.AuthorizationRequest) (paymentdomain.Authorization, error) {
	args := m.Called(ctx, req)
	auth, _ := args.Get(0).(paymentdomain.Authorization)
	return auth, args.Error(1)
}

func (m *Processor) CancelAuthorization(ctx context.Context, authorizationID string) error {
	args := m.Called(ctx, authorizationID)
	return args.Error(0)
}

func (m *Processor) CreateTransfer(ctx context.Context, req paymentdomain.TransferRequest) (paymentdomain.Transfer, error) {
	args := m.Called(ctx, req)
	transfer, _ := args.Get(0).(paymentdomain.Transfer)
	return transfer, args.Error(1)
}
