package channel

import (
	"context"
	"fmt"

	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
)

// SendResult is the outcome of one send. Senders report failures here
// instead of returning an error.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

//go:generate mockgen -destination=mock/sender_mock.go -package=mock . Sender

// Sender delivers one message to one recipient over one channel.
type Sender interface {
	Send(ctx context.Context, ch domain.Channel, recipient projectdomain.Recipient, subject string, body string) SendResult
}

// Processor dispatches a notification over a single channel.
type Processor interface {
	Channel() domain.Channel
	Process(ctx context.Context, n *domain.Notification, recipients []projectdomain.Recipient) domain.ChannelResult
}

// Registry maps each channel to its processor.
type Registry struct {
	processors map[domain.Channel]Processor
}

func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[domain.Channel]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.Channel()] = p
	}
	return r
}

// NewDefaultRegistry registers the processor for every known channel.
func NewDefaultRegistry(sender Sender) *Registry {
	return NewRegistry(
		NewEmailProcessor(sender),
		InAppProcessor{},
		NotImplementedProcessor{Kind: domain.ChannelSMS},
		NotImplementedProcessor{Kind: domain.ChannelWebhook},
	)
}

func (r *Registry) Dispatch(ctx context.Context, ch domain.Channel, n *domain.Notification, recipients []projectdomain.Recipient) domain.ChannelResult {
	p, ok := r.processors[ch]
	if !ok {
		return domain.ChannelResult{
			Channel: ch,
			Error:   fmt.Sprintf("unsupported channel: %s", ch),
		}
	}
	return p.Process(ctx, n, recipients)
}

// EmailProcessor sends to each recipient individually. The channel succeeds
// only when every recipient send succeeds; the last error is kept.
type EmailProcessor struct {
	sender Sender
}

func NewEmailProcessor(sender Sender) *EmailProcessor {
	return &EmailProcessor{sender: sender}
}

func (p *EmailProcessor) Channel() domain.Channel { return domain.ChannelEmail }

func (p *EmailProcessor) Process(ctx context.Context, n *domain.Notification, recipients []projectdomain.Recipient) domain.ChannelResult {
	result := domain.ChannelResult{
		Channel:    domain.ChannelEmail,
		Success:    true,
		Recipients: make([]domain.RecipientResult, 0, len(recipients)),
	}

	for _, recipient := range recipients {
		sent := p.sender.Send(ctx, domain.ChannelEmail, recipient, n.Subject, n.Body)
		result.Recipients = append(result.Recipients, domain.RecipientResult{
			UserID:    recipient.UserID.String(),
			Email:     recipient.Email,
			Success:   sent.Success,
			MessageID: sent.MessageID,
			Error:     sent.Error,
		})
		if !sent.Success {
			result.Success = false
			result.Error = sent.Error
			if result.Error == "" {
				result.Error = fmt.Sprintf("email delivery to %s failed", recipient.Email)
			}
		}
	}
	return result
}

// InAppProcessor has no transport yet; it reports delivery so queue
// accounting stays consistent.
type InAppProcessor struct{}

func (InAppProcessor) Channel() domain.Channel { return domain.ChannelInApp }

func (InAppProcessor) Process(ctx context.Context, n *domain.Notification, recipients []projectdomain.Recipient) domain.ChannelResult {
	return domain.ChannelResult{Channel: domain.ChannelInApp, Success: true}
}

// NotImplementedProcessor always fails with a well-formed result.
type NotImplementedProcessor struct {
	Kind domain.Channel
}

func (p NotImplementedProcessor) Channel() domain.Channel { return p.Kind }

func (p NotImplementedProcessor) Process(ctx context.Context, n *domain.Notification, recipients []projectdomain.Recipient) domain.ChannelResult {
	return domain.ChannelResult{
		Channel: p.Kind,
		Error:   fmt.Sprintf("%s channel not implemented", p.Kind),
	}
}
