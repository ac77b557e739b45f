package settlement

import (
	settlementdomain "github.com/smallbiznis/attendly/internal/settlement/domain"
	"github.com/smallbiznis/attendly/internal/settlement/repository"
	settlementservice "github.com/smallbiznis/attendly/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(settlementservice.NewService),
	fx.Provide(func(s *settlementservice.Service) settlementdomain.Service { return s }),
)
