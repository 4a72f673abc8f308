package affiliate

import (
	"github.com/smallbiznis/stagepass/internal/affiliate/repository"
	"github.com/smallbiznis/stagepass/internal/affiliate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("affiliate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
