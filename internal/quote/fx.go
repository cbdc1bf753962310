package quote

import (
	"github.com/smallbiznis/atelier/internal/quote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quote",
	fx.Provide(service.NewService),
)
