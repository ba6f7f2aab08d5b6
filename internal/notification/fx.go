package notification

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/premia/internal/events"
	"github.com/smallbiznis/premia/internal/notification/service"
)

func subscribe(bus *events.ChannelBus, sub *service.Subscriber) {
	bus.Subscribe(sub.Handle)
}

var Module = fx.Module("notification",
	fx.Provide(service.NewSubscriber),
	fx.Invoke(subscribe),
)
