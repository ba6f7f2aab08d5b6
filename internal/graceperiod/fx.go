package graceperiod

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/premia/internal/graceperiod/repository"
	"github.com/smallbiznis/premia/internal/graceperiod/service"
)

var Module = fx.Module("graceperiod",
	fx.Provide(
		repository.New,
		service.New,
	),
)
