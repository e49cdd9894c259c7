package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Message is a single outbound email with a plain-text and an HTML body.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages to an external transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Host string
	Port int
	// Secure selects implicit TLS (port 465 style). Otherwise STARTTLS is
	// used when the server offers it.
	Secure bool
	User   string
	Pass   string
	From   string
}

// SMTPMailer sends mail over SMTP. Consecutive transport failures open a
// circuit breaker so requests fail fast instead of waiting on a dead host.
type SMTPMailer struct {
	cfg    Config
	cb     *gobreaker.CircuitBreaker
	logger *zap.SugaredLogger
	dialer net.Dialer
}

func NewSMTPMailer(cfg Config, logger *zap.SugaredLogger) *SMTPMailer {
	st := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a refused recipient says nothing about the server's health
		IsSuccessful: func(err error) bool {
			var r *rejectedError
			return err == nil || errors.As(err, &r)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warnw("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &SMTPMailer{
		cfg:    cfg,
		cb:     gobreaker.NewCircuitBreaker(st),
		logger: logger,
		dialer: net.Dialer{Timeout: 10 * time.Second},
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" || msg.Subject == "" {
		return errors.New("recipient and subject are required")
	}
	body, err := buildMessage(m.cfg.From, msg, time.Now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	_, err = m.cb.Execute(func() (any, error) {
		return nil, m.deliver(ctx, msg.To, body)
	})
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Debugw("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, body []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	var conn net.Conn
	var err error
	if m.cfg.Secure {
		d := tls.Dialer{NetDialer: &m.dialer, Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = m.dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer client.Close()

	if !m.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.cfg.User != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return classify("set recipient", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return classify("close data writer", err)
	}
	return client.Quit()
}

// rejectedError is a permanent (5xx) refusal of one message by a server that
// is otherwise answering normally.
type rejectedError struct {
	err error
}

func (e *rejectedError) Error() string { return e.err.Error() }
func (e *rejectedError) Unwrap() error { return e.err }

func classify(stage string, err error) error {
	err = fmt.Errorf("%s: %w", stage, err)
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 && reply.Code < 600 {
		return &rejectedError{err: err}
	}
	return err
}

// buildMessage renders a multipart/alternative MIME message.
func buildMessage(from string, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", p.contentType)
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LogMailer writes messages to the log instead of delivering them. It is
// used when no SMTP host is configured (local development).
type LogMailer struct {
	Logger *zap.SugaredLogger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Infow("email not delivered: smtp disabled", "to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}
