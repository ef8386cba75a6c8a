package suspension

import (
	"github.com/smallbiznis/tenantguard/internal/suspension/repository"
	"github.com/smallbiznis/tenantguard/internal/suspension/service"
	"go.uber.org/fx"
)

var Module = fx.Module("suspension.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
