package delivery

import (
	"github.com/smallbiznis/recyclesim/internal/delivery/repository"
	"github.com/smallbiznis/recyclesim/internal/delivery/service"
	"github.com/smallbiznis/recyclesim/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery.service",
	fx.Provide(repository.Provide),
	fx.Provide(pdf.New),
	fx.Provide(service.New),
)
