package artist

import (
	"github.com/smallbiznis/stagepass/internal/artist/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("artist.repository",
	fx.Provide(repository.Provide),
)
