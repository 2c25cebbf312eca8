// Package notify delivers password reset links to administrators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/smtp"
	"net/url"
	"time"

	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/util"
)

// ResetMessage carries the raw token; it must not be logged.
type ResetMessage struct {
	Email     string
	Token     string
	ResetURL  string
	ExpiresAt time.Time
}

// Link is the URL the administrator follows to redeem the token.
func (m ResetMessage) Link() string {
	u, err := url.Parse(m.ResetURL)
	if err != nil {
		return m.ResetURL + "?token=" + url.QueryEscape(m.Token)
	}
	q := u.Query()
	q.Set("token", m.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

type Notifier interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

// Dispatch sends msg in the background with a bounded timeout. Failures are
// logged and otherwise ignored.
func Dispatch(n Notifier, timeout time.Duration, msg ResetMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.SendPasswordReset(ctx, msg); err != nil {
			util.Warn("password reset notification failed",
				zap.String("email", msg.Email),
				util.Token("token", msg.Token),
				zap.Error(err))
		}
	}()
}

const resetTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">Reset your admin password</h2>
  <p>A password reset was requested for {{.Email}}. The link below is valid until {{.Expires}} and can be used once.</p>
  <p style="margin-top:24px">
    <a href="{{.Link}}" style="background:#4f46e5;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">Choose a new password</a>
  </p>
  <p style="color:#999;font-size:12px">If you did not ask for this, you can ignore this email.</p>
</div>
</body>
</html>`

var resetTemplate = template.Must(template.New("reset").Parse(resetTpl))

func renderReset(msg ResetMessage) (string, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, struct {
		Email   string
		Link    string
		Expires string
	}{msg.Email, msg.Link(), msg.ExpiresAt.UTC().Format(time.RFC1123)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends the reset mail directly.
type SMTPNotifier struct {
	cfg      config.MailConfig
	sendMail sendMailFunc
}

func NewSMTPNotifier(cfg config.MailConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPNotifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	html, err := renderReset(msg)
	if err != nil {
		return fmt.Errorf("failed to render reset mail: %w", err)
	}

	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, port)
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString(fmt.Sprintf("From: %s\r\n", from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", msg.Email))
	body.WriteString("Subject: Reset your admin password\r\n")
	body.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	body.WriteString("\r\n")
	body.WriteString(html)

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	// net/smtp has no context support; run it aside and stop waiting at ctx.
	errc := make(chan error, 1)
	go func() {
		errc <- s.sendMail(addr, auth, from, []string{msg.Email}, body.Bytes())
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// KafkaProducer is the slice of client.KafkaProducer the notifier uses.
type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaNotifier hands the reset mail to a downstream mailer service.
type KafkaNotifier struct {
	producer KafkaProducer
	topic    string
}

func NewKafkaNotifier(producer KafkaProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (k *KafkaNotifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":       "admin_password_reset",
		"email":      msg.Email,
		"link":       msg.Link(),
		"expires_at": msg.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	return k.producer.ProduceMessage(ctx, k.topic, []byte(msg.Email), payload,
		map[string]string{"notification_type": "admin_password_reset"})
}

// LogNotifier only records that a reset mail would have been sent.
type LogNotifier struct{}

func (LogNotifier) SendPasswordReset(_ context.Context, msg ResetMessage) error {
	util.Info("password reset issued (mail delivery disabled)",
		zap.String("email", msg.Email),
		util.Token("token", msg.Token),
		zap.Time("expires_at", msg.ExpiresAt))
	return nil
}
