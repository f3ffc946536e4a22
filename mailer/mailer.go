package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"
)

const VerificationSubject = "Email verification code"

var verificationBody = template.Must(template.New("verification").Parse(`<p>Hello {{ .Name }},</p>
<p>Your email verification code is: <strong>{{ .Code }}</strong></p>
<p>If you did not request this code you can ignore this message.</p>`))

type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Config holds the SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dialer sends fully built messages, satisfied by *gomail.Dialer
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers verification codes over SMTP
type SMTPMailer struct {
	from   string
	dialer Dialer
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// WithDialer replaces the SMTP transport
func (s *SMTPMailer) WithDialer(d Dialer) *SMTPMailer {
	if d != nil {
		s.dialer = d
	}
	return s
}

func (s *SMTPMailer) SendVerificationCode(ctx context.Context, to, fullName, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := s.buildMessage(to, fullName, code)
	if err != nil {
		return err
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPMailer) buildMessage(to, fullName, code string) (*gomail.Message, error) {
	body, err := renderVerification(fullName, code)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", VerificationSubject)
	m.SetBody("text/html", body)
	return m, nil
}

func renderVerification(fullName, code string) (string, error) {
	var buf bytes.Buffer
	err := verificationBody.Execute(&buf, struct {
		Name string
		Code string
	}{Name: fullName, Code: code})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// LogMailer writes codes to the log instead of sending them, for
// development setups without SMTP
type LogMailer struct {
	logger Logger
}

func NewLogMailer(logger Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (l *LogMailer) SendVerificationCode(ctx context.Context, to, fullName, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("verification code for %s <%s>: %s", fullName, to, code)
	return nil
}
