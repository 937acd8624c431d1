package providers

import (
	"github.com/palcoscenico/agibilita/internal/providers/email"
	"github.com/palcoscenico/agibilita/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
