package archive

import (
	"github.com/smallbiznis/atelier/internal/archive/service"
	"go.uber.org/fx"
)

var Module = fx.Module("archive",
	fx.Provide(service.NewService),
)
