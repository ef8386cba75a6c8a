package enforcement

import (
	"github.com/smallbiznis/tenantguard/internal/enforcement/domain"
	"github.com/smallbiznis/tenantguard/internal/enforcement/service"
	"github.com/smallbiznis/tenantguard/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("enforcement.service",
	fx.Provide(func(g *ratelimit.ProjectGuard) domain.Guard { return g }),
	fx.Provide(service.New),
)
