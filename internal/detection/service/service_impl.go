package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/internal/config"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     detectiondomain.Repository
	Defaults *config.DetectionConfigHolder
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     detectiondomain.Repository
	defaults *config.DetectionConfigHolder
	auditSvc auditdomain.Service
}

func New(p Params) detectiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("detection.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		defaults: p.Defaults,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) SpikeConfig(ctx context.Context, projectID snowflake.ID) (detectiondomain.SpikeConfig, error) {
	if projectID == 0 {
		return detectiondomain.SpikeConfig{}, detectiondomain.ErrInvalidProject
	}
	override, err := s.repo.FindSpikeConfig(ctx, s.db, projectID)
	if err != nil {
		return detectiondomain.SpikeConfig{}, err
	}
	if override != nil {
		return detectiondomain.SpikeConfig{
			ThresholdMultiplier: override.ThresholdMultiplier,
			Window:              time.Duration(override.WindowSeconds) * time.Second,
			BaselinePeriod:      time.Duration(override.BaselineSeconds) * time.Second,
			MinUsageThreshold:   override.MinUsageThreshold,
			Action:              override.Action,
			Enabled:             override.Enabled,
			Source:              detectiondomain.SourceProject,
		}, nil
	}

	defaults := s.defaults.Get().Spike
	return detectiondomain.SpikeConfig{
		ThresholdMultiplier: defaults.ThresholdMultiplier,
		Window:              defaults.WindowDuration,
		BaselinePeriod:      defaults.BaselinePeriod,
		MinUsageThreshold:   defaults.MinUsageThreshold,
		Action:              detectiondomain.Action(defaults.Action),
		Enabled:             defaults.Enabled,
		Source:              detectiondomain.SourceDefault,
	}, nil
}

func (s *Service) ErrorRateConfig(ctx context.Context, projectID snowflake.ID) (detectiondomain.ErrorRateConfigValue, error) {
	if projectID == 0 {
		return detectiondomain.ErrorRateConfigValue{}, detectiondomain.ErrInvalidProject
	}
	override, err := s.repo.FindErrorRateConfig(ctx, s.db, projectID)
	if err != nil {
		return detectiondomain.ErrorRateConfigValue{}, err
	}
	if override != nil {
		return detectiondomain.ErrorRateConfigValue{
			ErrorRateThreshold:      override.ErrorRateThreshold,
			Window:                  time.Duration(override.WindowSeconds) * time.Second,
			MinRequestsForDetection: override.MinRequestsForDetection,
			Action:                  override.Action,
			Enabled:                 override.Enabled,
			Source:                  detectiondomain.SourceProject,
		}, nil
	}

	defaults := s.defaults.Get().ErrorRate
	return detectiondomain.ErrorRateConfigValue{
		ErrorRateThreshold:      defaults.ErrorRateThreshold,
		Window:                  defaults.WindowDuration,
		MinRequestsForDetection: defaults.MinRequestsForDetection,
		Action:                  detectiondomain.Action(defaults.Action),
		Enabled:                 defaults.Enabled,
		Source:                  detectiondomain.SourceDefault,
	}, nil
}

func (s *Service) EvaluateSpike(ctx context.Context, projectID snowflake.ID, in detectiondomain.SpikeInput) (detectiondomain.Result, error) {
	cfg, err := s.SpikeConfig(ctx, projectID)
	if err != nil {
		return detectiondomain.Result{}, err
	}
	res := detectiondomain.DetectSpike(cfg, in)
	if res.Detected {
		s.log.Info("spike detected",
			zap.String("project_id", projectID.String()),
			zap.String("severity", string(res.Severity)),
			zap.Float64("ratio", res.Ratio),
			zap.String("config_source", string(cfg.Source)),
		)
	}
	return res, nil
}

func (s *Service) EvaluateErrorRate(ctx context.Context, projectID snowflake.ID, in detectiondomain.ErrorRateInput) (detectiondomain.Result, error) {
	cfg, err := s.ErrorRateConfig(ctx, projectID)
	if err != nil {
		return detectiondomain.Result{}, err
	}
	res := detectiondomain.DetectErrorRate(cfg, in)
	if res.Detected {
		s.log.Info("error rate detected",
			zap.String("project_id", projectID.String()),
			zap.String("severity", string(res.Severity)),
			zap.Float64("error_rate", res.Ratio),
			zap.String("config_source", string(cfg.Source)),
		)
	}
	return res, nil
}

func (s *Service) UpsertSpikeConfig(ctx context.Context, req detectiondomain.UpsertSpikeConfigRequest) (*detectiondomain.SpikeDetectionConfig, error) {
	if err := validation.Struct(req, detectiondomain.ErrInvalidRequest); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cfg := &detectiondomain.SpikeDetectionConfig{
		ID:                  s.genID.Generate(),
		ProjectID:           req.ProjectID,
		ThresholdMultiplier: req.ThresholdMultiplier,
		WindowSeconds:       req.WindowSeconds,
		BaselineSeconds:     req.BaselineSeconds,
		MinUsageThreshold:   req.MinUsageThreshold,
		Action:              req.Action,
		Enabled:             req.Enabled,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.UpsertSpikeConfig(ctx, s.db, cfg); err != nil {
		return nil, err
	}

	stored, err := s.repo.FindSpikeConfig(ctx, s.db, req.ProjectID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, req.ProjectID, "detection.spike_config_updated", map[string]any{
		"threshold_multiplier": req.ThresholdMultiplier,
		"window_seconds":       req.WindowSeconds,
		"baseline_seconds":     req.BaselineSeconds,
		"min_usage_threshold":  req.MinUsageThreshold,
		"action":               string(req.Action),
		"enabled":              req.Enabled,
	})
	return stored, nil
}

func (s *Service) UpsertErrorRateConfig(ctx context.Context, req detectiondomain.UpsertErrorRateConfigRequest) (*detectiondomain.ErrorRateConfig, error) {
	if err := validation.Struct(req, detectiondomain.ErrInvalidRequest); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cfg := &detectiondomain.ErrorRateConfig{
		ID:                      s.genID.Generate(),
		ProjectID:               req.ProjectID,
		ErrorRateThreshold:      req.ErrorRateThreshold,
		WindowSeconds:           req.WindowSeconds,
		MinRequestsForDetection: req.MinRequestsForDetection,
		Action:                  req.Action,
		Enabled:                 req.Enabled,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.repo.UpsertErrorRateConfig(ctx, s.db, cfg); err != nil {
		return nil, err
	}

	stored, err := s.repo.FindErrorRateConfig(ctx, s.db, req.ProjectID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, req.ProjectID, "detection.error_rate_config_updated", map[string]any{
		"error_rate_threshold":       req.ErrorRateThreshold,
		"window_seconds":             req.WindowSeconds,
		"min_requests_for_detection": req.MinRequestsForDetection,
		"action":                     string(req.Action),
		"enabled":                    req.Enabled,
	})
	return stored, nil
}

func (s *Service) audit(ctx context.Context, projectID snowflake.ID, action string, after map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := projectID.String()
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ProjectID:  &projectID,
		Action:     action,
		TargetType: "detection_config",
		TargetID:   &targetID,
		After:      after,
	}); err != nil {
		s.log.Warn("failed to audit detection config", zap.String("action", action), zap.Error(err))
	}
}
