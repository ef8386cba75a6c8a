package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type SetRequest struct {
	ProjectID snowflake.ID `json:"project_id" validate:"required"`
	CapType   CapType      `json:"cap_type" validate:"required"`
	Value     int64        `json:"value"`
}

type CapUpdate struct {
	CapType CapType `json:"cap_type" validate:"required"`
	Value   int64   `json:"value"`
}

type BulkUpdateRequest struct {
	ProjectID snowflake.ID `json:"project_id" validate:"required"`
	Updates   []CapUpdate  `json:"updates" validate:"min=1,max=10,unique=CapType,dive"`
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, projectID snowflake.ID, capType CapType) (*Quota, error)
	ListByProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID) ([]Quota, error)
	Upsert(ctx context.Context, db *gorm.DB, quota *Quota) error
	InsertMissing(ctx context.Context, db *gorm.DB, quota *Quota) error
	LockProject(ctx context.Context, tx *gorm.DB, projectID snowflake.ID) (bool, error)
}

type Service interface {
	Get(ctx context.Context, projectID snowflake.ID, capType CapType) (int64, error)
	// List returns every cap type for the project, filling defaults for rows
	// that were never provisioned.
	List(ctx context.Context, projectID snowflake.ID) (Caps, error)
	Set(ctx context.Context, req SetRequest) (*Quota, error)
	ApplyDefaults(ctx context.Context, projectID snowflake.ID) error
	BulkUpdate(ctx context.Context, req BulkUpdateRequest) (Caps, error)
	// SnapshotInTx locks the project and returns its caps on tx.
	SnapshotInTx(ctx context.Context, tx *gorm.DB, projectID snowflake.ID) (Caps, error)
	// ApplyInTx validates and writes caps on an existing transaction and
	// returns the snapshot before the write. It does not audit.
	ApplyInTx(ctx context.Context, tx *gorm.DB, projectID snowflake.ID, updates Caps, now time.Time) (Caps, error)
}

var (
	ErrInvalidProject  = errors.New("invalid_project")
	ErrInvalidCapType  = errors.New("invalid_cap_type")
	ErrOutOfRange      = errors.New("out_of_range")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrProjectNotFound = errors.New("project_not_found")
)
