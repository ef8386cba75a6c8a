package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
)

type Outcome string

const (
	OutcomeClear            Outcome = "clear"
	OutcomeWarned           Outcome = "warned"
	OutcomeSuspended        Outcome = "suspended"
	OutcomeAlreadySuspended Outcome = "already_suspended"
	OutcomeSkippedLocked    Outcome = "skipped_locked"
	OutcomeSkippedThrottled Outcome = "skipped_throttled"
)

// CapWindow is the usage window compared against the daily caps.
const CapWindow = 24 * time.Hour

type CapCheck struct {
	CapType  quotadomain.CapType `json:"cap_type"`
	Current  int64               `json:"current"`
	Limit    int64               `json:"limit"`
	Exceeded bool                `json:"exceeded"`
}

// Evaluation is the outcome of one pass over a project's usage.
type Evaluation struct {
	ProjectID   snowflake.ID              `json:"project_id"`
	Outcome     Outcome                   `json:"outcome"`
	Source      string                    `json:"source,omitempty"`
	Caps        []CapCheck                `json:"caps,omitempty"`
	Spike       *detectiondomain.Result   `json:"spike,omitempty"`
	ErrorRate   *detectiondomain.Result   `json:"error_rate,omitempty"`
	Warnings    []notificationdomain.Type `json:"warnings,omitempty"`
	EvaluatedAt time.Time                 `json:"evaluated_at"`
}

type SweepResult struct {
	Evaluated int `json:"evaluated"`
	Suspended int `json:"suspended"`
	Warned    int `json:"warned"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Guard serializes evaluations per project and rate limits them.
type Guard interface {
	Acquire(ctx context.Context, projectID snowflake.ID) (func(), error)
	MarkWarned(ctx context.Context, projectID snowflake.ID, kind string, ttl time.Duration) (func(), error)
}

type Service interface {
	// EvaluateProject compares usage to caps and runs both detectors. A cap
	// breach or a detector recommending suspension suspends the project.
	EvaluateProject(ctx context.Context, projectID snowflake.ID) (*Evaluation, error)
	// Sweep evaluates every ACTIVE project.
	Sweep(ctx context.Context) (SweepResult, error)
}

var (
	ErrInvalidProject  = errors.New("invalid_project")
	ErrProjectNotFound = errors.New("project_not_found")
)
