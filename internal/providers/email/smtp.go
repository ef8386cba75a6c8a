package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

var ErrNoRecipients = errors.New("email: no recipients")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg      Config
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, sendMail: smtp.SendMail}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) (string, error) {
	if len(to) == 0 {
		return "", ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	messageID := newMessageID(p.cfg.Host)
	msg := buildMessage(p.cfg.From, to, subject, messageID, htmlBody)
	if err := p.sendMail(addr, auth, p.cfg.From, to, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

func (p *SMTPProvider) SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) (string, error) {
	body, err := render(templateName, data)
	if err != nil {
		return "", err
	}
	return p.Send(ctx, to, subject, body)
}

func buildMessage(from string, to []string, subject, messageID, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Message-ID: " + messageID + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

func render(name string, data any) (string, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.ParseFS(templateFS, "templates/*.html")
	})
	if templatesErr != nil {
		return "", fmt.Errorf("failed to parse templates: %w", templatesErr)
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return body.String(), nil
}
