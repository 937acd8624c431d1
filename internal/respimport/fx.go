package respimport

import "go.uber.org/fx"

var Module = fx.Module("respimport.service",
	fx.Provide(NewService),
)
