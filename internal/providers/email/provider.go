package email

import (
	"context"

	"github.com/google/uuid"
)

// Provider delivers a rendered HTML message and returns the Message-ID it used.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) (string, error)
	SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) (string, error)
}

// NoOpProvider accepts every message without sending it.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) (string, error) {
	return newMessageID("noop"), nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) (string, error) {
	if _, err := render(templateName, data); err != nil {
		return "", err
	}
	return newMessageID("noop"), nil
}

func newMessageID(domain string) string {
	return "<" + uuid.NewString() + "@" + domain + ">"
}
