package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubProvider struct {
	to       []string
	template string
	data     any
	err      error
}

func (p *stubProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) (string, error) {
	return "", errors.New("unexpected")
}

func (p *stubProvider) SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) (string, error) {
	p.to = to
	p.template = templateName
	p.data = data
	if p.err != nil {
		return "", p.err
	}
	return "<id@mail>", nil
}

func TestEmailSender(t *testing.T) {
	name := "Ada"
	provider := &stubProvider{}
	sender := NewEmailSender(provider, zap.NewNop())

	res := sender.Send(context.Background(), domain.ChannelEmail,
		projectdomain.Recipient{UserID: 3, Email: "ada@example.com", Name: &name}, "s", "b")
	assert.True(t, res.Success)
	assert.Equal(t, "<id@mail>", res.MessageID)
	assert.Equal(t, []string{"ada@example.com"}, provider.to)
	assert.Equal(t, "notification", provider.template)
	assert.Equal(t, "Ada", provider.data.(map[string]any)["Name"])

	res = sender.Send(context.Background(), domain.ChannelEmail, projectdomain.Recipient{UserID: 4}, "s", "b")
	assert.False(t, res.Success)
	assert.Equal(t, "recipient has no email address", res.Error)

	provider.err = errors.New("dial tcp: refused")
	res = sender.Send(context.Background(), domain.ChannelEmail, projectdomain.Recipient{UserID: 3, Email: "ada@example.com"}, "s", "b")
	assert.False(t, res.Success)
	assert.Equal(t, "dial tcp: refused", res.Error)

	res = sender.Send(context.Background(), domain.ChannelSMS, projectdomain.Recipient{UserID: 3, Email: "ada@example.com"}, "s", "b")
	assert.False(t, res.Success)
}
