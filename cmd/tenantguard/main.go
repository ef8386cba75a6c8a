package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/audit"
	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/internal/config"
	"github.com/smallbiznis/tenantguard/internal/detection"
	"github.com/smallbiznis/tenantguard/internal/enforcement"
	"github.com/smallbiznis/tenantguard/internal/logger"
	"github.com/smallbiznis/tenantguard/internal/migration"
	"github.com/smallbiznis/tenantguard/internal/notification"
	"github.com/smallbiznis/tenantguard/internal/notification/worker"
	obsmetrics "github.com/smallbiznis/tenantguard/internal/observability/metrics"
	"github.com/smallbiznis/tenantguard/internal/observability/tracing"
	"github.com/smallbiznis/tenantguard/internal/project"
	"github.com/smallbiznis/tenantguard/internal/providers/email"
	"github.com/smallbiznis/tenantguard/internal/quota"
	"github.com/smallbiznis/tenantguard/internal/ratelimit"
	"github.com/smallbiznis/tenantguard/internal/scheduler"
	"github.com/smallbiznis/tenantguard/internal/server"
	"github.com/smallbiznis/tenantguard/internal/suspension"
	"github.com/smallbiznis/tenantguard/internal/usage"
	"github.com/smallbiznis/tenantguard/pkg/db"
	"github.com/smallbiznis/tenantguard/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		logger.WithFxEvents,
		obsmetrics.Module,
		tracing.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisclient.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		audit.Module,
		project.Module,
		quota.Module,
		detection.Module,
		email.Module,
		notification.Module,
		suspension.Module,
		usage.Module,
		ratelimit.Module,
		enforcement.Module,

		// Background work and the operator API
		worker.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
