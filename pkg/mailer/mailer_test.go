package mailer

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := buildMessage("noreply@example.com", Message{
		To:      "jane@example.com",
		Subject: "Your code",
		Text:    "code 123456",
		HTML:    "<p>code <strong>123456</strong></p>",
	}, now)
	require.NoError(t, err)

	s := string(b)
	assert.True(t, strings.HasPrefix(s, "From: noreply@example.com\r\n"))
	assert.Contains(t, s, "To: jane@example.com\r\n")
	assert.Contains(t, s, "Subject: Your code\r\n")
	assert.Contains(t, s, "Content-Type: multipart/alternative;")
	assert.Contains(t, s, "text/plain; charset=UTF-8")
	assert.Contains(t, s, "<strong>123456</strong>")
}

func TestSendRequiresRecipient(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "127.0.0.1", Port: 25}, zap.NewNop().Sugar())
	err := m.Send(context.Background(), Message{Subject: "x"})
	assert.Error(t, err)
}

func TestSendOpensBreakerAfterRepeatedFailures(t *testing.T) {
	// grab a free port and close it so connections are refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m := NewSMTPMailer(Config{Host: "127.0.0.1", Port: port, From: "a@example.com"}, zap.NewNop().Sugar())
	msg := Message{To: "b@example.com", Subject: "s", Text: "t"}

	for i := 0; i < 5; i++ {
		err := m.Send(context.Background(), msg)
		require.Error(t, err)
		assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}
	err = m.Send(context.Background(), msg)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

// fakeSMTP serves a minimal SMTP dialogue that answers RCPT with rcptReply.
func fakeSMTP(t *testing.T, rcptReply string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSMTP(conn, rcptReply)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func serveSMTP(conn net.Conn, rcptReply string) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, _, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO", "HELO":
			_ = tp.PrintfLine("250 localhost")
		case "RCPT":
			_ = tp.PrintfLine("%s", rcptReply)
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 OK")
		}
	}
}

func TestRecipientRejectionKeepsBreakerClosed(t *testing.T) {
	port := fakeSMTP(t, "550 5.1.1 no such user")
	m := NewSMTPMailer(Config{Host: "127.0.0.1", Port: port, From: "a@example.com"}, zap.NewNop().Sugar())
	msg := Message{To: "nobody@example.com", Subject: "s", Text: "t"}

	for i := 0; i < 8; i++ {
		err := m.Send(context.Background(), msg)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState, "send %d", i)
		var reply *textproto.Error
		require.ErrorAs(t, err, &reply)
		assert.Equal(t, 550, reply.Code)
	}
	assert.Equal(t, gobreaker.StateClosed, m.cb.State())
}

func TestTemporaryRecipientFailureCounts(t *testing.T) {
	port := fakeSMTP(t, "451 4.3.0 try later")
	m := NewSMTPMailer(Config{Host: "127.0.0.1", Port: port, From: "a@example.com"}, zap.NewNop().Sugar())
	msg := Message{To: "b@example.com", Subject: "s", Text: "t"}

	for i := 0; i < 5; i++ {
		require.Error(t, m.Send(context.Background(), msg))
	}
	assert.ErrorIs(t, m.Send(context.Background(), msg), gobreaker.ErrOpenState)
}

func TestLogMailer(t *testing.T) {
	m := LogMailer{Logger: zap.NewNop().Sugar()}
	assert.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "s"}))
}
