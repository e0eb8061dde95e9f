package credits

import (
	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	"github.com/smallbiznis/recyclesim/internal/credits/repository"
	"github.com/smallbiznis/recyclesim/internal/credits/service"
	"github.com/smallbiznis/recyclesim/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("credits.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) creditsdomain.Service { return s }),
	fx.Invoke(Subscribe),
)

// Subscribe attaches the projection to in-process DeliveryCompleted events.
func Subscribe(local *events.LocalPublisher, svc *service.Service) {
	local.Subscribe(events.TypeDeliveryCompleted, svc)
}
