package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/clock"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/smallbiznis/tenantguard/pkg/db"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   projectdomain.Repository
	Quotas projectdomain.QuotaInitializer `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   projectdomain.Repository
	quotas projectdomain.QuotaInitializer
}

func New(p Params) projectdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("project.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		quotas: p.Quotas,
	}
}

func (s *Service) Create(ctx context.Context, req projectdomain.CreateProjectRequest) (*projectdomain.Project, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req, projectdomain.ErrInvalidRequest); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	project := &projectdomain.Project{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		Name:      req.Name,
		Status:    projectdomain.StatusActive,
		OwnerID:   req.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, project); err != nil {
		return nil, err
	}

	if s.quotas != nil {
		if err := s.quotas.ApplyDefaults(ctx, project.ID); err != nil {
			return nil, fmt.Errorf("apply default quotas: %w", err)
		}
	}

	s.log.Info("project provisioned",
		zap.String("project_id", project.ID.String()),
		zap.String("org_id", project.OrgID.String()),
	)
	return project, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*projectdomain.Project, error) {
	if id == 0 {
		return nil, projectdomain.ErrInvalidProject
	}
	project, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, projectdomain.ErrProjectNotFound
	}
	return project, nil
}

func (s *Service) ListIDsByStatus(ctx context.Context, status projectdomain.Status, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListIDsByStatus(ctx, s.db, status, afterID, limit)
}

func (s *Service) CreateUser(ctx context.Context, req projectdomain.CreateUserRequest) (*projectdomain.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(req, projectdomain.ErrInvalidRequest); err != nil {
		return nil, err
	}

	user := &projectdomain.User{
		ID:        s.genID.Generate(),
		Email:     req.Email,
		Name:      req.Name,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertUser(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, projectdomain.ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) AddMember(ctx context.Context, req projectdomain.AddMemberRequest) error {
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if err := validation.Struct(req, projectdomain.ErrInvalidRequest); err != nil {
		return err
	}
	return s.repo.UpsertMember(ctx, s.db, &projectdomain.OrganizationMember{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		UserID:    req.UserID,
		Role:      req.Role,
		CreatedAt: s.clock.Now(),
	})
}

func (s *Service) SetPreference(ctx context.Context, req projectdomain.SetPreferenceRequest) error {
	req.NotificationType = strings.TrimSpace(req.NotificationType)
	if err := validation.Struct(req, projectdomain.ErrInvalidRequest); err != nil {
		return err
	}
	return s.repo.UpsertPreference(ctx, s.db, &projectdomain.NotificationPreference{
		ID:               s.genID.Generate(),
		UserID:           req.UserID,
		NotificationType: req.NotificationType,
		Enabled:          req.Enabled,
		UpdatedAt:        s.clock.Now(),
	})
}

func (s *Service) GetNotificationRecipients(ctx context.Context, projectID snowflake.ID, notificationType string) ([]projectdomain.Recipient, error) {
	if projectID == 0 {
		return nil, projectdomain.ErrInvalidProject
	}

	candidates := make([]projectdomain.Recipient, 0, 4)
	owner, err := s.repo.FindOwner(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		candidates = append(candidates, *owner)
	}

	members, err := s.repo.ListMembers(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, members...)

	seen := make(map[snowflake.ID]struct{}, len(candidates))
	unique := make([]projectdomain.Recipient, 0, len(candidates))
	ids := make([]snowflake.ID, 0, len(candidates))
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.Email) == "" {
			continue
		}
		if _, ok := seen[candidate.UserID]; ok {
			continue
		}
		seen[candidate.UserID] = struct{}{}
		unique = append(unique, candidate)
		ids = append(ids, candidate.UserID)
	}

	optedOut, err := s.repo.ListOptedOutUserIDs(ctx, s.db, notificationType, ids)
	if err != nil {
		return nil, err
	}
	if len(optedOut) == 0 {
		return unique, nil
	}

	excluded := make(map[snowflake.ID]struct{}, len(optedOut))
	for _, id := range optedOut {
		excluded[id] = struct{}{}
	}
	recipients := unique[:0]
	for _, candidate := range unique {
		if _, ok := excluded[candidate.UserID]; ok {
			continue
		}
		recipients = append(recipients, candidate)
	}
	return recipients, nil
}
