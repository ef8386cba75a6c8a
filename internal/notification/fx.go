package notification

import (
	"github.com/smallbiznis/tenantguard/internal/notification/channel"
	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	"github.com/smallbiznis/tenantguard/internal/notification/repository"
	"github.com/smallbiznis/tenantguard/internal/notification/service"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc projectdomain.Service) domain.RecipientResolver { return svc }),
	channel.Module,
)
