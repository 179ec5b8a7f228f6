package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Service sends transactional notifications. Sends are best-effort;
// callers log failures and continue.
type Service interface {
	SendAccountApproved(ctx context.Context, to, firstName string) error
	SendCustom(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg Config) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendAccountApproved(ctx context.Context, to, firstName string) error {
	body := fmt.Sprintf(
		"Hola %s,\n\nTu cuenta fue aprobada. Ya podés ingresar al panel con tu email y contraseña.\n\nSaludos,\nEl equipo",
		firstName,
	)
	return s.SendCustom(ctx, to, "Cuenta aprobada", body)
}

func (s *smtpService) SendCustom(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// NoopService discards all mail. Used when SMTP is not configured.
type NoopService struct{}

func (NoopService) SendAccountApproved(ctx context.Context, to, firstName string) error { return nil }

func (NoopService) SendCustom(ctx context.Context, to, subject, body string) error { return nil }
