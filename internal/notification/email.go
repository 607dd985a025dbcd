package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"go.uber.org/zap"
)

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

var emailTemplate = template.Must(template.New("email").Parse(`{{.Title}}
{{.Rule}}

{{.Body}}
{{if .DeviceID}}
Device: {{.DeviceID}}{{if .Parameter}} ({{.Parameter}}){{end}}{{end}}

---
Home Monitor
`))

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends notifications as plain text email.
type EmailNotifier struct {
	config   SMTPConfig
	logger   *zap.Logger
	sendMail sendMailFunc
	now      func() time.Time
}

func NewEmailNotifier(cfg SMTPConfig, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{config: cfg, logger: logger, sendMail: smtp.SendMail, now: time.Now}
}

// Configured reports whether credentials are present.
func (e *EmailNotifier) Configured() bool {
	return e.config.Username != "" && e.config.Password != ""
}

func (e *EmailNotifier) Send(_ context.Context, n Notification) error {
	subject := n.Title
	if n.Priority >= PriorityHigh {
		subject = "[ALERT] " + subject
	}

	body, err := renderEmail(n)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	// Skip sending if SMTP is not configured
	if !e.Configured() {
		e.logger.Info("SMTP not configured, skipping email", zap.String("subject", subject))
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", e.now().Format(time.RFC1123Z))
	message += "Content-Type: text/plain; charset=utf-8\r\n"
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.sendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("Email sent", zap.String("subject", subject))
	return nil
}

// TestConnection dials the SMTP server.
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()
	return nil
}

func renderEmail(n Notification) (string, error) {
	rule := make([]byte, len([]rune(n.Title)))
	for i := range rule {
		rule[i] = '='
	}

	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Notification
		Rule string
	}{n, string(rule)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
