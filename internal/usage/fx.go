package usage

import (
	"github.com/smallbiznis/tenantguard/internal/usage/repository"
	"github.com/smallbiznis/tenantguard/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
