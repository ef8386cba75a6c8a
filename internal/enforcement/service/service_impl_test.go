package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	auditrepo "github.com/smallbiznis/tenantguard/internal/audit/repository"
	auditservice "github.com/smallbiznis/tenantguard/internal/audit/service"
	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/internal/config"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	detectionrepo "github.com/smallbiznis/tenantguard/internal/detection/repository"
	detectionservice "github.com/smallbiznis/tenantguard/internal/detection/service"
	"github.com/smallbiznis/tenantguard/internal/enforcement/domain"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	notificationrepo "github.com/smallbiznis/tenantguard/internal/notification/repository"
	notificationservice "github.com/smallbiznis/tenantguard/internal/notification/service"
	"github.com/smallbiznis/tenantguard/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	projectrepo "github.com/smallbiznis/tenantguard/internal/project/repository"
	projectservice "github.com/smallbiznis/tenantguard/internal/project/service"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	quotarepo "github.com/smallbiznis/tenantguard/internal/quota/repository"
	quotaservice "github.com/smallbiznis/tenantguard/internal/quota/service"
	"github.com/smallbiznis/tenantguard/internal/ratelimit"
	suspensiondomain "github.com/smallbiznis/tenantguard/internal/suspension/domain"
	suspensionrepo "github.com/smallbiznis/tenantguard/internal/suspension/repository"
	suspensionservice "github.com/smallbiznis/tenantguard/internal/suspension/service"
	"github.com/smallbiznis/tenantguard/internal/testutil"
	usagedomain "github.com/smallbiznis/tenantguard/internal/usage/domain"
	usagerepo "github.com/smallbiznis/tenantguard/internal/usage/repository"
	usageservice "github.com/smallbiznis/tenantguard/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	node      *snowflake.Node
	guard     *ratelimit.ProjectGuard
	projects  projectdomain.Service
	usage     usagedomain.Service
	detection detectiondomain.Service
	svc       domain.Service
}

// newFixture wires real services. wrap, when given, decorates the
// notification service the enforcement service enqueues through.
func newFixture(t *testing.T, wrap ...func(notificationdomain.Service) notificationdomain.Service) *fixture {
	t.Helper()

	db := testutil.OpenDB(t,
		&projectdomain.Project{},
		&quotadomain.Quota{},
		&suspensiondomain.SuspensionRecord{},
		&suspensiondomain.OverrideRecord{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
		&detectiondomain.SpikeDetectionConfig{},
		&detectiondomain.ErrorRateConfig{},
	)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := zaptest.NewLogger(t)
	fc := clock.NewFakeClock(time.Date(2026, 6, 8, 12, 30, 0, 0, time.UTC))
	node := testutil.NewNode(t)
	m := metrics.NewWithRegisterer(prometheus.NewRegistry(), metrics.Config{Environment: "test"})

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepo.Provide()})
	quotas := quotaservice.New(quotaservice.Params{
		DB: db, Log: log, GenID: node, Clock: fc, Repo: quotarepo.Provide(), AuditSvc: audit,
	})
	projects := projectservice.New(projectservice.Params{
		DB: db, Log: log, GenID: node, Clock: fc, Repo: projectrepo.Provide(), Quotas: quotas,
	})
	notifications := notificationservice.New(notificationservice.Params{
		DB: db, Log: log, GenID: node, Clock: fc, Repo: notificationrepo.Provide(), Recipients: projects, AuditSvc: audit,
	})
	suspension := suspensionservice.New(suspensionservice.Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Clock:         fc,
		Repo:          suspensionrepo.Provide(),
		ProjectRepo:   projectrepo.Provide(),
		QuotaSvc:      quotas,
		Notifications: notifications,
		AuditSvc:      audit,
		Metrics:       m,
	})
	detection := detectionservice.New(detectionservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fc,
		Repo:     detectionrepo.Provide(),
		Defaults: config.NewStaticDetectionConfigHolder(config.DefaultDetectionDefaults()),
		AuditSvc: audit,
	})
	usage := usageservice.New(usageservice.Params{Log: log, Clock: fc, Repo: usagerepo.Provide(client)})
	guard := ratelimit.NewProjectGuard(client, ratelimit.GuardConfig{LockTTL: time.Minute, Rate: 1000, Burst: 1000}, log)
	warnings := notifications
	for _, w := range wrap {
		warnings = w(warnings)
	}

	return &fixture{
		db:        db,
		clock:     fc,
		node:      node,
		guard:     guard,
		projects:  projects,
		usage:     usage,
		detection: detection,
		svc: New(Params{
			Log:           log,
			Clock:         fc,
			Guard:         guard,
			Projects:      projects,
			Quotas:        quotas,
			Usage:         usage,
			Detection:     detection,
			Suspension:    suspension,
			Notifications: warnings,
			Metrics:       m,
		}),
	}
}

func (f *fixture) project(t *testing.T) snowflake.ID {
	t.Helper()
	p, err := f.projects.Create(context.Background(), projectdomain.CreateProjectRequest{
		OrgID:   f.node.Generate(),
		Name:    "storefront",
		OwnerID: f.node.Generate(),
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) record(t *testing.T, projectID snowflake.ID, metric usagedomain.Metric, value int64, ago time.Duration) {
	t.Helper()
	require.NoError(t, f.usage.Record(context.Background(), usagedomain.RecordRequest{
		ProjectID:  projectID,
		Metric:     metric,
		Value:      value,
		RecordedAt: f.clock.Now().Add(-ago),
	}))
}

// steadyTraffic gives the project a baseline of perHour requests per hour.
func (f *fixture) steadyTraffic(t *testing.T, projectID snowflake.ID, perHour int64) {
	t.Helper()
	f.record(t, projectID, usagedomain.MetricRequests, perHour*7*24, 48*time.Hour)
}

func (f *fixture) status(t *testing.T, projectID snowflake.ID) projectdomain.Status {
	t.Helper()
	p, err := f.projects.Get(context.Background(), projectID)
	require.NoError(t, err)
	return p.Status
}

func (f *fixture) notifications(t *testing.T, projectID snowflake.ID, typ notificationdomain.Type) []notificationdomain.Notification {
	t.Helper()
	var rows []notificationdomain.Notification
	require.NoError(t, f.db.Where("project_id = ? AND notification_type = ?", projectID, typ).Find(&rows).Error)
	return rows
}

func TestEvaluateQuietProjectIsClear(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeClear, eval.Outcome)
	require.Len(t, eval.Caps, 4)
	for _, check := range eval.Caps {
		assert.False(t, check.Exceeded, check.CapType)
	}
	require.NotNil(t, eval.Spike)
	assert.False(t, eval.Spike.Detected)
	assert.Equal(t, projectdomain.StatusActive, f.status(t, projectID))
}

func TestUsageAtCapDoesNotSuspend(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)
	f.record(t, projectID, usagedomain.MetricDBQueries, 100_000, 3*time.Hour)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeClear, eval.Outcome)
}

func TestUsageOverCapSuspends(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)
	f.record(t, projectID, usagedomain.MetricDBQueries, 60_000, 5*time.Hour)
	f.record(t, projectID, usagedomain.MetricDBQueries, 40_001, 0)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuspended, eval.Outcome)
	assert.Equal(t, string(suspensiondomain.SourceQuota), eval.Source)
	assert.Equal(t, projectdomain.StatusSuspended, f.status(t, projectID))

	var record suspensiondomain.SuspensionRecord
	require.NoError(t, f.db.Where("project_id = ?", projectID).Take(&record).Error)
	require.NotNil(t, record.CapType)
	assert.Equal(t, string(quotadomain.CapDBQueriesPerDay), *record.CapType)
	assert.Equal(t, int64(100_001), record.CurrentValue)
	assert.Equal(t, int64(100_000), record.LimitExceeded)
	assert.Len(t, f.notifications(t, projectID, notificationdomain.TypeProjectSuspended), 1)

	again, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadySuspended, again.Outcome)
	assert.Len(t, f.notifications(t, projectID, notificationdomain.TypeProjectSuspended), 1)
}

func TestRealtimeGaugeOverCapSuspends(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)
	f.record(t, projectID, usagedomain.MetricRealtimeConnections, 101, 0)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuspended, eval.Outcome)
}

func TestSpikeWarningIsSentOncePerWindow(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)
	f.steadyTraffic(t, projectID, 10)
	f.record(t, projectID, usagedomain.MetricRequests, 200, 0)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWarned, eval.Outcome)
	require.NotNil(t, eval.Spike)
	assert.True(t, eval.Spike.Detected)
	assert.Equal(t, detectiondomain.SeveritySevere, eval.Spike.Severity)
	assert.Equal(t, []notificationdomain.Type{notificationdomain.TypeSpikeDetected}, eval.Warnings)
	assert.Equal(t, projectdomain.StatusActive, f.status(t, projectID))

	rows := f.notifications(t, projectID, notificationdomain.TypeSpikeDetected)
	require.Len(t, rows, 1)
	assert.Equal(t, notificationdomain.PriorityCritical, rows[0].Priority)

	eval, err = f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWarned, eval.Outcome)
	assert.Len(t, f.notifications(t, projectID, notificationdomain.TypeSpikeDetected), 1)
}

func TestSpikeWithSuspensionActionSuspends(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)
	_, err := f.detection.UpsertSpikeConfig(context.Background(), detectiondomain.UpsertSpikeConfigRequest{
		ProjectID:           projectID,
		ThresholdMultiplier: 3,
		WindowSeconds:       3600,
		BaselineSeconds:     7 * 24 * 3600,
		MinUsageThreshold:   100,
		Action:              detectiondomain.ActionSuspension,
		Enabled:             true,
	})
	require.NoError(t, err)
	f.steadyTraffic(t, projectID, 10)
	f.record(t, projectID, usagedomain.MetricRequests, 200, 0)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuspended, eval.Outcome)
	assert.Equal(t, string(suspensiondomain.SourceSpike), eval.Source)
	assert.Equal(t, projectdomain.StatusSuspended, f.status(t, projectID))
	assert.Empty(t, f.notifications(t, projectID, notificationdomain.TypeSpikeDetected))
}

func TestErrorRateWarning(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)
	f.steadyTraffic(t, projectID, 100)
	f.record(t, projectID, usagedomain.MetricRequests, 200, 0)
	f.record(t, projectID, usagedomain.MetricErrors, 120, 0)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWarned, eval.Outcome)
	assert.False(t, eval.Spike.Detected)
	require.NotNil(t, eval.ErrorRate)
	assert.Equal(t, detectiondomain.SeverityCritical, eval.ErrorRate.Severity)

	rows := f.notifications(t, projectID, notificationdomain.TypeErrorRateDetected)
	require.Len(t, rows, 1)
	assert.Equal(t, notificationdomain.PriorityHigh, rows[0].Priority)
}

func TestEvaluateSkipsWhileLockHeld(t *testing.T) {
	f := newFixture(t)
	projectID := f.project(t)
	f.record(t, projectID, usagedomain.MetricDBQueries, 200_000, 0)

	release, err := f.guard.Acquire(context.Background(), projectID)
	require.NoError(t, err)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedLocked, eval.Outcome)
	assert.Equal(t, projectdomain.StatusActive, f.status(t, projectID))

	release()
	eval, err = f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuspended, eval.Outcome)
}

func TestEvaluateUnknownProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.EvaluateProject(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)

	_, err = f.svc.EvaluateProject(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidProject)
}

func TestSweepEvaluatesActiveProjects(t *testing.T) {
	f := newFixture(t)
	quiet := f.project(t)
	busy := f.project(t)
	over := f.project(t)
	f.record(t, busy, usagedomain.MetricFunctionInvocations, 10_000, time.Hour)
	f.record(t, over, usagedomain.MetricStorageUploads, 1_001, 2*time.Hour)

	res, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 1, res.Suspended)
	assert.Zero(t, res.Failed)

	assert.Equal(t, projectdomain.StatusActive, f.status(t, quiet))
	assert.Equal(t, projectdomain.StatusActive, f.status(t, busy))
	assert.Equal(t, projectdomain.StatusSuspended, f.status(t, over))

	// Suspended projects drop out of the next sweep.
	res, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)
	assert.Zero(t, res.Suspended)
}

// failingEnqueue fails the first n Enqueue calls and delegates the rest.
type failingEnqueue struct {
	notificationdomain.Service
	remaining int
}

func (f *failingEnqueue) Enqueue(ctx context.Context, req notificationdomain.EnqueueRequest) (*notificationdomain.Notification, error) {
	if f.remaining > 0 {
		f.remaining--
		return nil, errors.New("queue unavailable")
	}
	return f.Service.Enqueue(ctx, req)
}

func TestSpikeWarningRetriedAfterEnqueueFailure(t *testing.T) {
	f := newFixture(t, func(svc notificationdomain.Service) notificationdomain.Service {
		return &failingEnqueue{Service: svc, remaining: 1}
	})
	projectID := f.project(t)
	f.steadyTraffic(t, projectID, 10)
	f.record(t, projectID, usagedomain.MetricRequests, 200, 0)

	eval, err := f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWarned, eval.Outcome)
	assert.Empty(t, f.notifications(t, projectID, notificationdomain.TypeSpikeDetected))

	f.clock.Advance(time.Minute)
	eval, err = f.svc.EvaluateProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWarned, eval.Outcome)
	assert.Len(t, f.notifications(t, projectID, notificationdomain.TypeSpikeDetected), 1)
}
