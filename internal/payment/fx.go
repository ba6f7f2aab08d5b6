package payment

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/premia/internal/payment/domain"
	"github.com/smallbiznis/premia/internal/payment/gateway"
	"github.com/smallbiznis/premia/internal/payment/repository"
	"github.com/smallbiznis/premia/internal/payment/service"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.New,
		gateway.New,
		func(c *gateway.Client) domain.Gateway { return c },
		service.New,
	),
)
