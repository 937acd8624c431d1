package filing

import (
	"github.com/palcoscenico/agibilita/internal/filing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("filing.service",
	fx.Provide(service.NewService),
)
