package detection

import (
	"github.com/smallbiznis/tenantguard/internal/detection/repository"
	"github.com/smallbiznis/tenantguard/internal/detection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("detection.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
