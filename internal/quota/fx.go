package quota

import (
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/smallbiznis/tenantguard/internal/quota/domain"
	"github.com/smallbiznis/tenantguard/internal/quota/repository"
	"github.com/smallbiznis/tenantguard/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) projectdomain.QuotaInitializer { return svc }),
)
