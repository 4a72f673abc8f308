package ticket

import (
	"github.com/smallbiznis/stagepass/internal/ticket/repository"
	"github.com/smallbiznis/stagepass/internal/ticket/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
