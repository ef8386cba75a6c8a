package project

import (
	"github.com/smallbiznis/tenantguard/internal/project/repository"
	"github.com/smallbiznis/tenantguard/internal/project/service"
	"go.uber.org/fx"
)

var Module = fx.Module("project.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
