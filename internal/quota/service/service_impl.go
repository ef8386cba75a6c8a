package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/auditcontext"
	"github.com/smallbiznis/tenantguard/internal/clock"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const auditActionQuotaUpdated = "quota.updated"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     quotadomain.Repository
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     quotadomain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) quotadomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("quota.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context, projectID snowflake.ID, capType quotadomain.CapType) (int64, error) {
	if projectID == 0 {
		return 0, quotadomain.ErrInvalidProject
	}
	b, ok := quotadomain.BoundsFor(capType)
	if !ok {
		return 0, quotadomain.ErrInvalidCapType
	}

	quota, err := s.repo.Find(ctx, s.db, projectID, capType)
	if err != nil {
		return 0, err
	}
	if quota == nil {
		return b.Default, nil
	}
	return quota.CapValue, nil
}

func (s *Service) List(ctx context.Context, projectID snowflake.ID) (quotadomain.Caps, error) {
	if projectID == 0 {
		return nil, quotadomain.ErrInvalidProject
	}
	return s.snapshot(ctx, s.db, projectID)
}

func (s *Service) Set(ctx context.Context, req quotadomain.SetRequest) (*quotadomain.Quota, error) {
	if err := validation.Struct(req, quotadomain.ErrInvalidRequest); err != nil {
		return nil, err
	}
	if err := quotadomain.Validate(req.CapType, req.Value); err != nil {
		return nil, err
	}

	var (
		previous quotadomain.Caps
		quota    *quotadomain.Quota
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		previous, err = s.ApplyInTx(ctx, tx, req.ProjectID, quotadomain.Caps{req.CapType: req.Value}, s.clock.Now())
		if err != nil {
			return err
		}
		quota, err = s.repo.Find(ctx, tx, req.ProjectID, req.CapType)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordUpdate(ctx, req.ProjectID,
		quotadomain.Caps{req.CapType: previous[req.CapType]},
		quotadomain.Caps{req.CapType: req.Value},
		"set",
	)
	return quota, nil
}

func (s *Service) BulkUpdate(ctx context.Context, req quotadomain.BulkUpdateRequest) (quotadomain.Caps, error) {
	if err := validation.Struct(req, quotadomain.ErrInvalidRequest); err != nil {
		return nil, err
	}

	updates := make(quotadomain.Caps, len(req.Updates))
	for _, update := range req.Updates {
		if err := quotadomain.Validate(update.CapType, update.Value); err != nil {
			return nil, fmt.Errorf("%s: %w", update.CapType, err)
		}
		updates[update.CapType] = update.Value
	}

	var previous quotadomain.Caps
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		previous, err = s.ApplyInTx(ctx, tx, req.ProjectID, updates, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	before := make(quotadomain.Caps, len(updates))
	for capType := range updates {
		before[capType] = previous[capType]
	}
	s.recordUpdate(ctx, req.ProjectID, before, updates, "bulk_update")

	current := make(quotadomain.Caps, len(previous))
	for capType, value := range previous {
		current[capType] = value
	}
	for capType, value := range updates {
		current[capType] = value
	}
	return current, nil
}

func (s *Service) ApplyDefaults(ctx context.Context, projectID snowflake.ID) error {
	if projectID == 0 {
		return quotadomain.ErrInvalidProject
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.LockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if !found {
			return quotadomain.ErrProjectNotFound
		}

		for _, capType := range quotadomain.CapTypes() {
			b, _ := quotadomain.BoundsFor(capType)
			err = s.repo.InsertMissing(ctx, tx, &quotadomain.Quota{
				ID:        s.genID.Generate(),
				ProjectID: projectID,
				CapType:   capType,
				CapValue:  b.Default,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) ApplyInTx(ctx context.Context, tx *gorm.DB, projectID snowflake.ID, updates quotadomain.Caps, now time.Time) (quotadomain.Caps, error) {
	if projectID == 0 {
		return nil, quotadomain.ErrInvalidProject
	}
	for capType, value := range updates {
		if err := quotadomain.Validate(capType, value); err != nil {
			return nil, fmt.Errorf("%s: %w", capType, err)
		}
	}

	previous, err := s.SnapshotInTx(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}

	for _, capType := range quotadomain.CapTypes() {
		value, ok := updates[capType]
		if !ok {
			continue
		}
		err := s.repo.Upsert(ctx, tx, &quotadomain.Quota{
			ID:        s.genID.Generate(),
			ProjectID: projectID,
			CapType:   capType,
			CapValue:  value,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, err
		}
	}
	return previous, nil
}

func (s *Service) SnapshotInTx(ctx context.Context, tx *gorm.DB, projectID snowflake.ID) (quotadomain.Caps, error) {
	if projectID == 0 {
		return nil, quotadomain.ErrInvalidProject
	}
	found, err := s.repo.LockProject(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, quotadomain.ErrProjectNotFound
	}
	return s.snapshot(ctx, tx, projectID)
}

func (s *Service) snapshot(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (quotadomain.Caps, error) {
	rows, err := s.repo.ListByProject(ctx, db, projectID)
	if err != nil {
		return nil, err
	}

	caps := make(quotadomain.Caps, len(quotadomain.CapTypes()))
	for _, capType := range quotadomain.CapTypes() {
		b, _ := quotadomain.BoundsFor(capType)
		caps[capType] = b.Default
	}
	for _, row := range rows {
		if _, ok := quotadomain.BoundsFor(row.CapType); !ok {
			continue
		}
		caps[row.CapType] = row.CapValue
	}
	return caps, nil
}

func (s *Service) recordUpdate(ctx context.Context, projectID snowflake.ID, before, after quotadomain.Caps, source string) {
	if s.auditSvc == nil {
		return
	}
	targetID := projectID.String()
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ProjectID:  &projectID,
		Action:     auditActionQuotaUpdated,
		TargetType: "project_quota",
		TargetID:   &targetID,
		Before:     before.ToMap(),
		After:      after.ToMap(),
		Metadata: map[string]any{
			"source":       source,
			"performed_by": auditcontext.PerformedBy(ctx),
		},
	})
	if err != nil {
		s.log.Warn("failed to audit quota update",
			zap.String("project_id", projectID.String()),
			zap.Error(err),
		)
	}
}
