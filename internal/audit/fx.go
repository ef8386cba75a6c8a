// Package audit records the append-only trail of automated and manual state
// changes.
package audit

import (
	"github.com/smallbiznis/tenantguard/internal/audit/repository"
	"github.com/smallbiznis/tenantguard/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
