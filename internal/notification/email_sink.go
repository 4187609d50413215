package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/smallbiznis/cryptopay/internal/config"
)

var ErrNoRecipients = errors.New("notification_no_recipients")

var emailTemplate = template.Must(template.New("notification").Parse(`<p>{{.EventType}} {{.Reference}} is now <strong>{{.Status}}</strong>.</p>
<table>
{{range $k, $v := .Data}}<tr><td>{{$k}}</td><td>{{$v}}</td></tr>
{{end}}</table>
`))

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailSink struct {
	cfg      config.SMTPConfig
	sendMail sendMailFunc
}

func NewEmailSink(cfg config.SMTPConfig) *EmailSink {
	return &EmailSink{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(job.Recipients) == 0 {
		return ErrNoRecipients
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, job); err != nil {
		return fmt.Errorf("render notification email: %w", err)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s",
		strings.Join(job.Recipients, ", "), subject(job), mime, body.String()))

	return s.sendMail(addr, auth, s.cfg.From, job.Recipients, msg)
}

func subject(job Job) string {
	if job.Reference == "" {
		return fmt.Sprintf("[cryptopay] %s %s", job.EventType, job.Status)
	}
	return fmt.Sprintf("[cryptopay] %s %s %s", job.EventType, job.Reference, job.Status)
}
