package channel

import (
	"context"
	"strings"

	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/smallbiznis/tenantguard/internal/providers/email"
	"go.uber.org/zap"
)

const emailTemplate = "notification"

// EmailSender adapts the email provider to the Sender contract.
type EmailSender struct {
	provider email.Provider
	log      *zap.Logger
}

func NewEmailSender(provider email.Provider, log *zap.Logger) *EmailSender {
	return &EmailSender{provider: provider, log: log.Named("notification.email")}
}

func (s *EmailSender) Send(ctx context.Context, ch domain.Channel, recipient projectdomain.Recipient, subject string, body string) SendResult {
	if ch != domain.ChannelEmail {
		return SendResult{Error: "email sender cannot deliver " + string(ch)}
	}
	address := strings.TrimSpace(recipient.Email)
	if address == "" {
		return SendResult{Error: "recipient has no email address"}
	}

	data := map[string]any{
		"Subject": subject,
		"Body":    body,
	}
	if recipient.Name != nil {
		data["Name"] = *recipient.Name
	}

	messageID, err := s.provider.SendTemplate(ctx, []string{address}, subject, emailTemplate, data)
	if err != nil {
		s.log.Warn("email send failed",
			zap.String("user_id", recipient.UserID.String()),
			zap.Error(err),
		)
		return SendResult{Error: err.Error()}
	}
	return SendResult{Success: true, MessageID: messageID}
}
