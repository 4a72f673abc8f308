package stripe

import (
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("stripe.client",
	fx.Provide(fx.Annotate(NewClient, fx.As(new(paymentdomain.Processor)))),
)
