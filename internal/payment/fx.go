package payment

import (
	"github.com/smallbiznis/stagepass/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/payment/reconciler"
	"github.com/smallbiznis/stagepass/internal/payment/repository"
	"github.com/smallbiznis/stagepass/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(
			stripe.NewAdapter,
			fx.As(new(paymentdomain.Adapter)),
			fx.ResultTags(`group:"payment_adapters"`),
		),
	),
	fx.Provide(reconciler.New),
	fx.Provide(webhook.NewService),
)
