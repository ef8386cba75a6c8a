package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/config"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	enforcementdomain "github.com/smallbiznis/tenantguard/internal/enforcement/domain"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/tenantguard/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	suspensiondomain "github.com/smallbiznis/tenantguard/internal/suspension/domain"
	usagedomain "github.com/smallbiznis/tenantguard/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log, classifyErrorForLog))
	r.Use(Tracing())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(Identity())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger, _ *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	projectSvc      projectdomain.Service
	quotaSvc        quotadomain.Service
	suspensionSvc   suspensiondomain.Service
	detectionSvc    detectiondomain.Service
	enforcementSvc  enforcementdomain.Service
	usageSvc        usagedomain.Service
	notificationSvc notificationdomain.Service
	auditSvc        auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	ProjectSvc      projectdomain.Service
	QuotaSvc        quotadomain.Service
	SuspensionSvc   suspensiondomain.Service
	DetectionSvc    detectiondomain.Service
	EnforcementSvc  enforcementdomain.Service
	UsageSvc        usagedomain.Service
	NotificationSvc notificationdomain.Service
	AuditSvc        auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		projectSvc:      p.ProjectSvc,
		quotaSvc:        p.QuotaSvc,
		suspensionSvc:   p.SuspensionSvc,
		detectionSvc:    p.DetectionSvc,
		enforcementSvc:  p.EnforcementSvc,
		usageSvc:        p.UsageSvc,
		notificationSvc: p.NotificationSvc,
		auditSvc:        p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// -------- Projects --------
	api.POST("/projects", RequireActor(), s.CreateProject)
	api.GET("/projects/:id", s.GetProject)
	api.GET("/projects/:id/usage", s.GetUsageSnapshot)

	// -------- Recipients --------
	api.POST("/users", RequireActor(), s.CreateUser)
	api.PUT("/organizations/:org_id/members/:user_id", RequireActor(), s.PutMember)
	api.PUT("/users/:user_id/preferences/:type", RequireActor(), s.PutPreference)

	// -------- Quotas --------
	api.GET("/projects/:id/quotas", s.ListQuotas)
	api.GET("/projects/:id/quotas/:cap_type", s.GetQuota)
	api.PUT("/projects/:id/quotas/:cap_type", RequireActor(), s.SetQuota)
	api.POST("/projects/:id/quotas/bulk", RequireActor(), s.BulkUpdateQuotas)

	// -------- Detection --------
	api.GET("/projects/:id/detection", s.GetDetectionConfig)
	api.PUT("/projects/:id/detection/spike", RequireActor(), s.UpsertSpikeConfig)
	api.PUT("/projects/:id/detection/error-rate", RequireActor(), s.UpsertErrorRateConfig)

	// -------- Suspension --------
	api.POST("/projects/:id/suspend", RequireActor(), s.SuspendProject)
	api.POST("/projects/:id/unsuspend", RequireActor(), s.UnsuspendProject)
	api.POST("/projects/:id/override", RequireActor(), s.OverrideProject)
	api.GET("/projects/:id/suspensions", s.ListSuspensions)
	api.POST("/projects/:id/evaluate", s.EvaluateProject)

	// -------- Usage --------
	api.POST("/usage", s.RecordUsage)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)
	api.GET("/notifications/:id", s.GetNotification)
	api.POST("/notifications/retry", RequireActor(), s.RetryNotifications)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
