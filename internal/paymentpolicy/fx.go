package paymentpolicy

import (
	"github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"github.com/smallbiznis/tugas/internal/paymentpolicy/repository"
	"github.com/smallbiznis/tugas/internal/paymentpolicy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentpolicy.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Resolver { return svc }),
)
