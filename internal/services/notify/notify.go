// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package notify delivers verification and outcome messages via SMTP.
// Delivery is fire-and-forget from the state machines' perspective:
// failures are logged by the caller, never block a transition.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/mwaldner/veriflow/internal/config"
	"github.com/mwaldner/veriflow/internal/i18n"
	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/policy"
)

type Service struct {
	cfg     *config.SMTPConfig
	baseURL string
}

// NewService creates a new notification service.
func NewService(cfg *config.SMTPConfig, baseURL string) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// SendLoginCode mails a one-time sign-in code.
func (s *Service) SendLoginCode(ctx context.Context, user *models.User, code string) error {
	subject := i18n.T(ctx, "login_code_subject")
	body := i18n.TData(ctx, "login_code_body", map[string]any{"Code": code})
	return s.send(user.Email, subject, body)
}

// SendTransferConfirm mails a confirmation link to one party of an admin
// transfer. otherEmail names the opposite party in the message.
func (s *Service) SendTransferConfirm(ctx context.Context, user *models.User, purpose policy.Purpose, workflowID, secret, otherEmail string) error {
	side := "new"
	if purpose == policy.PurposeAdminTransferOld {
		side = "old"
	}
	url := fmt.Sprintf("%s/admin/transfer/%s/confirm?side=%s&token=%s", s.baseURL, workflowID, side, secret)

	subject := i18n.T(ctx, "transfer_"+side+"_subject")
	body := i18n.TData(ctx, "transfer_"+side+"_body", map[string]any{
		"URL":   url,
		"Other": otherEmail,
	})
	return s.send(user.Email, subject, body)
}

// SendDeletionAck mails the deletion acknowledgement link to the target.
func (s *Service) SendDeletionAck(ctx context.Context, user *models.User, secret string) error {
	url := fmt.Sprintf("%s/admin/deletions/confirm?token=%s", s.baseURL, secret)

	subject := i18n.T(ctx, "deletion_ack_subject")
	body := i18n.TData(ctx, "deletion_ack_body", map[string]any{"URL": url})
	return s.send(user.Email, subject, body)
}

// SendOutcome mails a terminal-state notification, e.g.
// "transfer_completed" or "deletion_cancelled".
func (s *Service) SendOutcome(ctx context.Context, user *models.User, outcome string) error {
	subject := i18n.T(ctx, "outcome_subject")
	body := i18n.T(ctx, "outcome_"+outcome)
	return s.send(user.Email, subject, body)
}

// send sends an email via SMTP using go-mail.
func (s *Service) send(to, subject, body string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}

	return nil
}
