package billing

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/premia/internal/billing/repository"
	"github.com/smallbiznis/premia/internal/billing/service"
)

var Module = fx.Module("billing",
	fx.Provide(
		repository.New,
		service.New,
	),
)
