package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/clock"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/smallbiznis/tenantguard/internal/project/repository"
	"github.com/smallbiznis/tenantguard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type quotaSeeder struct {
	seeded []snowflake.ID
	err    error
}

func (q *quotaSeeder) ApplyDefaults(_ context.Context, projectID snowflake.ID) error {
	q.seeded = append(q.seeded, projectID)
	return q.err
}

func newTestService(t *testing.T, quotas projectdomain.QuotaInitializer) projectdomain.Service {
	t.Helper()
	db := testutil.OpenDB(t,
		&projectdomain.Project{},
		&projectdomain.User{},
		&projectdomain.OrganizationMember{},
		&projectdomain.NotificationPreference{},
	)
	return New(Params{
		DB:     db,
		Log:    zaptest.NewLogger(t),
		GenID:  testutil.NewNode(t),
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:   repository.Provide(),
		Quotas: quotas,
	})
}

func strPtr(v string) *string { return &v }

func TestCreateSeedsDefaultQuotas(t *testing.T) {
	seeder := &quotaSeeder{}
	svc := newTestService(t, seeder)
	ctx := context.Background()

	owner, err := svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "Owner@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", owner.Email)

	project, err := svc.Create(ctx, projectdomain.CreateProjectRequest{OrgID: 10, Name: " api ", OwnerID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, projectdomain.StatusActive, project.Status)
	assert.Equal(t, "api", project.Name)
	assert.Equal(t, []snowflake.ID{project.ID}, seeder.seeded)

	got, err := svc.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.OwnerID, got.OwnerID)
}

func TestCreateFailsWhenQuotaSeedingFails(t *testing.T) {
	svc := newTestService(t, &quotaSeeder{err: errors.New("boom")})
	_, err := svc.Create(context.Background(), projectdomain.CreateProjectRequest{OrgID: 1, Name: "x", OwnerID: 2})
	assert.Error(t, err)
}

func TestCreateValidatesRequest(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Create(context.Background(), projectdomain.CreateProjectRequest{Name: "x"})
	assert.ErrorIs(t, err, projectdomain.ErrInvalidRequest)
}

func TestGetUnknownProject(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)
	_, err = svc.Get(context.Background(), 0)
	assert.ErrorIs(t, err, projectdomain.ErrInvalidProject)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "a@example.com"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "A@example.com"})
	assert.ErrorIs(t, err, projectdomain.ErrUserExists)
}

func TestGetNotificationRecipients(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	owner, err := svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "owner@example.com", Name: strPtr("Owner")})
	require.NoError(t, err)
	admin, err := svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "admin@example.com"})
	require.NoError(t, err)
	muted, err := svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "muted@example.com"})
	require.NoError(t, err)
	outsider, err := svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "outsider@example.com"})
	require.NoError(t, err)

	project, err := svc.Create(ctx, projectdomain.CreateProjectRequest{OrgID: 10, Name: "api", OwnerID: owner.ID})
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, projectdomain.AddMemberRequest{OrgID: 10, UserID: owner.ID, Role: "owner"}))
	require.NoError(t, svc.AddMember(ctx, projectdomain.AddMemberRequest{OrgID: 10, UserID: admin.ID, Role: "admin"}))
	require.NoError(t, svc.AddMember(ctx, projectdomain.AddMemberRequest{OrgID: 10, UserID: muted.ID, Role: "developer"}))
	require.NoError(t, svc.AddMember(ctx, projectdomain.AddMemberRequest{OrgID: 20, UserID: outsider.ID, Role: "admin"}))

	require.NoError(t, svc.SetPreference(ctx, projectdomain.SetPreferenceRequest{UserID: muted.ID, NotificationType: "project_suspended", Enabled: false}))
	require.NoError(t, svc.SetPreference(ctx, projectdomain.SetPreferenceRequest{UserID: admin.ID, NotificationType: "project_suspended", Enabled: true}))

	recipients, err := svc.GetNotificationRecipients(ctx, project.ID, "project_suspended")
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, owner.ID, recipients[0].UserID)
	assert.Equal(t, projectdomain.RoleOwner, recipients[0].Role)
	require.NotNil(t, recipients[0].Name)
	assert.Equal(t, "Owner", *recipients[0].Name)
	assert.Equal(t, admin.ID, recipients[1].UserID)

	// the opt-out only applies to the type it names
	recipients, err = svc.GetNotificationRecipients(ctx, project.ID, "spike_detected")
	require.NoError(t, err)
	assert.Len(t, recipients, 3)
}

func TestGetNotificationRecipientsAllOptedOut(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	owner, err := svc.CreateUser(ctx, projectdomain.CreateUserRequest{Email: "owner@example.com"})
	require.NoError(t, err)
	project, err := svc.Create(ctx, projectdomain.CreateProjectRequest{OrgID: 10, Name: "api", OwnerID: owner.ID})
	require.NoError(t, err)

	require.NoError(t, svc.SetPreference(ctx, projectdomain.SetPreferenceRequest{UserID: owner.ID, NotificationType: "project_suspended", Enabled: false}))
	// a later toggle replaces the earlier one
	require.NoError(t, svc.SetPreference(ctx, projectdomain.SetPreferenceRequest{UserID: owner.ID, NotificationType: "spike_detected", Enabled: false}))
	require.NoError(t, svc.SetPreference(ctx, projectdomain.SetPreferenceRequest{UserID: owner.ID, NotificationType: "spike_detected", Enabled: true}))

	recipients, err := svc.GetNotificationRecipients(ctx, project.ID, "project_suspended")
	require.NoError(t, err)
	assert.Empty(t, recipients)

	recipients, err = svc.GetNotificationRecipients(ctx, project.ID, "spike_detected")
	require.NoError(t, err)
	assert.Len(t, recipients, 1)
}

func TestListIDsByStatus(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	var created []snowflake.ID
	for i := 0; i < 3; i++ {
		p, err := svc.Create(ctx, projectdomain.CreateProjectRequest{OrgID: 1, Name: "p", OwnerID: 1})
		require.NoError(t, err)
		created = append(created, p.ID)
	}

	page, err := svc.ListIDsByStatus(ctx, projectdomain.StatusActive, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, created[:2], page)

	page, err = svc.ListIDsByStatus(ctx, projectdomain.StatusActive, page[1], 2)
	require.NoError(t, err)
	assert.Equal(t, created[2:], page)
}
