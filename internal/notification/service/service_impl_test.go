package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	"github.com/smallbiznis/tenantguard/internal/notification/repository"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/smallbiznis/tenantguard/internal/testutil"
	"github.com/smallbiznis/tenantguard/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type staticRecipients struct {
	gotType string
	out     []projectdomain.Recipient
}

func (s *staticRecipients) GetNotificationRecipients(_ context.Context, _ snowflake.ID, notificationType string) ([]projectdomain.Recipient, error) {
	s.gotType = notificationType
	return s.out, nil
}

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock, *staticRecipients) {
	t.Helper()
	db := testutil.OpenDB(t, &domain.Notification{})
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	recipients := &staticRecipients{}
	svc := New(Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		GenID:      testutil.NewNode(t),
		Clock:      clk,
		Repo:       repository.Provide(),
		Recipients: recipients,
	})
	return svc, db, clk, recipients
}

func validRequest() domain.EnqueueRequest {
	return domain.EnqueueRequest{
		ProjectID:        42,
		NotificationType: domain.TypeQuotaOverride,
		Priority:         domain.PriorityMedium,
		Subject:          " Quota override ",
		Body:             "Caps were raised.",
		Data:             map[string]any{"action": "INCREASE_CAPS"},
		Channels:         []domain.Channel{domain.ChannelEmail, domain.ChannelInApp},
	}
}

func TestEnqueuePersistsPending(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.Enqueue(ctx, validRequest())
	require.NoError(t, err)
	assert.NotZero(t, n.ID)

	got, err := svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, "Quota override", got.Subject)
	assert.Equal(t, "INCREASE_CAPS", got.Data["action"])
	assert.Equal(t, []domain.Channel{domain.ChannelEmail, domain.ChannelInApp}, []domain.Channel(got.Channels))
}

func TestEnqueueValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(*domain.EnqueueRequest){
		"missing subject":   func(r *domain.EnqueueRequest) { r.Subject = "  " },
		"missing body":      func(r *domain.EnqueueRequest) { r.Body = "" },
		"no channels":       func(r *domain.EnqueueRequest) { r.Channels = nil },
		"unknown channel":   func(r *domain.EnqueueRequest) { r.Channels = []domain.Channel{"pager"} },
		"duplicate channel": func(r *domain.EnqueueRequest) { r.Channels = []domain.Channel{"email", "email"} },
		"bad priority":      func(r *domain.EnqueueRequest) { r.Priority = "urgent" },
		"missing project":   func(r *domain.EnqueueRequest) { r.ProjectID = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := svc.Enqueue(ctx, req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}

	req := validRequest()
	req.NotificationType = "invoice_due"
	_, err := svc.Enqueue(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestGetMissing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotificationMissing)
}

func TestGetNotificationRecipientsDelegates(t *testing.T) {
	svc, _, _, recipients := newTestService(t)
	recipients.out = []projectdomain.Recipient{{UserID: 1, Email: "a@example.com"}}

	got, err := svc.GetNotificationRecipients(context.Background(), 42, domain.TypeSpikeDetected)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "spike_detected", recipients.gotType)

	_, err = svc.GetNotificationRecipients(context.Background(), 42, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestRetryFailedNotificationsLaw(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	eligible, err := svc.Enqueue(ctx, validRequest())
	require.NoError(t, err)
	exhausted, err := svc.Enqueue(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.Notification{}).Where("id = ?", eligible.ID).
		Updates(map[string]any{"status": domain.StatusFailed, "attempts": 2}).Error)
	require.NoError(t, db.Model(&domain.Notification{}).Where("id = ?", exhausted.ID).
		Updates(map[string]any{"status": domain.StatusFailed, "attempts": 3}).Error)

	result, err := svc.RetryFailedNotifications(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.RetryResult{Retried: 1, TerminalFailures: 1}, result)

	got, err := svc.Get(ctx, eligible.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, got.Status)

	got, err = svc.Get(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)

	terminal, err := svc.ListTerminalFailures(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, terminal, 1)
	assert.Equal(t, exhausted.ID, terminal[0].ID)

	_, err = svc.RetryFailedNotifications(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidMaxAttempts)
}

func TestListPaginates(t *testing.T) {
	svc, _, clk, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Enqueue(ctx, validRequest())
		require.NoError(t, err)
		clk.Advance(time.Second)
	}

	first, err := svc.List(ctx, domain.ListNotificationRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		ProjectID:  "42",
	})
	require.NoError(t, err)
	assert.Len(t, first.Notifications, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, domain.ListNotificationRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		ProjectID:  "42",
	})
	require.NoError(t, err)
	assert.Len(t, second.Notifications, 1)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextPageToken)

	_, err = svc.List(ctx, domain.ListNotificationRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
