package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

type captureLogger struct {
	lines []string
}

func (l *captureLogger) Info(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Warn(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestSMTPMailerSendsVerificationCode(t *testing.T) {
	dialer := &captureDialer{}
	m := NewSMTPMailer(Config{From: "sso@example.com"}).WithDialer(dialer)

	err := m.SendVerificationCode(context.Background(), "a@x.com", "Ada <Admin>", "482193")
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)

	msg := dialer.sent[0]
	assert.Equal(t, []string{"sso@example.com"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"a@x.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{VerificationSubject}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "482193")
	assert.NotContains(t, buf.String(), "<Admin>")
}

func TestSMTPMailerReportsTransportFailure(t *testing.T) {
	dialer := &captureDialer{err: errors.New("connection refused")}
	m := NewSMTPMailer(Config{From: "sso@example.com"}).WithDialer(dialer)

	err := m.SendVerificationCode(context.Background(), "a@x.com", "Ada", "482193")
	require.Error(t, err)
	assert.ErrorIs(t, err, dialer.err)
}

func TestSMTPMailerHonorsCancelledContext(t *testing.T) {
	dialer := &captureDialer{}
	m := NewSMTPMailer(Config{}).WithDialer(dialer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.SendVerificationCode(ctx, "a@x.com", "Ada", "1"), context.Canceled)
	assert.Empty(t, dialer.sent)
}

func TestLogMailer(t *testing.T) {
	logger := &captureLogger{}
	m := NewLogMailer(logger)

	require.NoError(t, m.SendVerificationCode(context.Background(), "a@x.com", "Ada", "482193"))
	require.Len(t, logger.lines, 1)
	assert.Contains(t, logger.lines[0], "482193")
	assert.Contains(t, logger.lines[0], "a@x.com")
}
