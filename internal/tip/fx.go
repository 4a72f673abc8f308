package tip

import (
	"github.com/smallbiznis/stagepass/internal/tip/repository"
	"github.com/smallbiznis/stagepass/internal/tip/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tip.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
