package otp

import (
	"context"
	"fmt"
	"html"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-social/pkg/mailer"
)

var ErrDelivery = apperr.New(apperr.Delivery, "failed to send OTP email")

type template struct {
	subject string
	action  string
}

var templates = map[entity.Purpose]template{
	entity.PurposeEmailVerification: {"Your OTP for Email Verification", "verify your email"},
	entity.PurposeLogin:             {"Your OTP for Login", "complete your login"},
	entity.PurposePasswordReset:     {"Your OTP for Password Reset", "reset your password"},
}

// Sender renders a code into an email and hands it to the transport.
type Sender struct {
	mailer mailer.Mailer
}

func NewSender(m mailer.Mailer) *Sender { return &Sender{mailer: m} }

func (s *Sender) Send(ctx context.Context, email, code string, purpose entity.Purpose) error {
	tpl, ok := templates[purpose]
	if !ok {
		return apperr.New(apperr.Internal, fmt.Sprintf("unknown otp purpose %q", purpose))
	}
	msg := mailer.Message{
		To:      email,
		Subject: tpl.subject,
		Text:    fmt.Sprintf("Your OTP is: %s. Please use this to %s.", code, tpl.action),
		HTML:    fmt.Sprintf("<p>Your OTP is: <strong>%s</strong>. Please use this to %s.</p>", html.EscapeString(code), tpl.action),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return apperr.Because(ErrDelivery, err)
	}
	return nil
}
