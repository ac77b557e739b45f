package payment

import (
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"github.com/smallbiznis/attendly/internal/payment/repository"
	paymentservice "github.com/smallbiznis/attendly/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) paymentdomain.Service { return s }),
)
