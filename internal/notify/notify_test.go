package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	netmail "net/mail"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/meetapp/internal/mail"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/queue"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleMail() SubscriptionMail {
	meetup := &models.Meetup{
		ID:       "m1",
		Title:    "Go Night",
		Location: "Main Street 1",
		Date:     time.Date(2030, 5, 1, 18, 30, 0, 0, time.UTC),
	}
	organizer := &models.User{ID: "u1", Name: "Olivia", Email: "olivia@example.com"}
	subscriber := &models.User{ID: "u2", Name: "Uma", Email: "uma@example.com"}
	return NewSubscriptionMail(meetup, organizer, subscriber)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (*queue.Job, error) {
	return nil, errors.New("redis down")
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, mail.Message) error {
	return errors.New("relay refused")
}

func TestDispatcher(t *testing.T) {
	t.Run("publishes job", func(t *testing.T) {
		q := queue.NewMemoryQueue()
		NewDispatcher(q, discard).SubscriptionCreated(context.Background(), sampleMail())

		jobs := q.Jobs(SubscriptionMailKey)
		require.Len(t, jobs, 1)

		var payload SubscriptionMail
		require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
		assert.Equal(t, sampleMail(), payload)
	})

	t.Run("publish failure is swallowed", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewDispatcher(failingPublisher{}, discard).SubscriptionCreated(context.Background(), sampleMail())
		})
	})
}

func TestRenderSubscriptionMail(t *testing.T) {
	msg, err := RenderSubscriptionMail(sampleMail())
	require.NoError(t, err)

	assert.Equal(t, netmail.Address{Name: "Olivia", Address: "olivia@example.com"}, msg.To)
	assert.Equal(t, "New subscription: Go Night", msg.Subject)
	assert.Contains(t, msg.Body, `Uma <uma@example.com> subscribed to your meetup "Go Night"`)
	assert.Contains(t, msg.Body, "Wednesday, May 1, 2030 at 18:30 UTC")
	assert.Contains(t, msg.Body, "Where: Main Street 1")
}

func TestSubscriptionMailHandler(t *testing.T) {
	q := queue.NewMemoryQueue()
	NewDispatcher(q, discard).SubscriptionCreated(context.Background(), sampleMail())

	t.Run("sends to organizer", func(t *testing.T) {
		mailer := mail.NewLogMailer(discard)
		q.Drain(context.Background(), SubscriptionMailKey, SubscriptionMailHandler(mailer, discard))

		sent := mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "olivia@example.com", sent[0].To.Address)
	})

	t.Run("mailer failure fails the job", func(t *testing.T) {
		job := queue.Job{ID: "j1", Key: SubscriptionMailKey}
		job.Payload, _ = json.Marshal(sampleMail())

		err := SubscriptionMailHandler(failingMailer{}, discard)(context.Background(), job)
		assert.ErrorContains(t, err, "relay refused")
	})

	t.Run("bad payload", func(t *testing.T) {
		job := queue.Job{ID: "j2", Key: SubscriptionMailKey, Payload: json.RawMessage(`"nope"`)}
		err := SubscriptionMailHandler(mail.NewLogMailer(discard), discard)(context.Background(), job)
		assert.Error(t, err)
	})
}

func TestRenderSubscriptionMailFlattensTitle(t *testing.T) {
	m := sampleMail()
	m.Meetup.Title = "Go\r\nBcc: victim@evil.example"

	msg, err := RenderSubscriptionMail(m)
	require.NoError(t, err)
	assert.Equal(t, "New subscription: Go Bcc: victim@evil.example", msg.Subject)
}

// smtpServer is a minimal SMTP server accepting one session. It rejects
// envelope addresses that are not a bare <local@domain>.
type smtpServer struct {
	addr string

	mu       sync.Mutex
	commands []string
	data     string
}

var envelopeCommand = regexp.MustCompile(`^(MAIL FROM|RCPT TO):<[^<>\s]+@[^<>\s]+>$`)

func startSMTPServer(t *testing.T) *smtpServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &smtpServer{addr: ln.Addr().String()}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		s.serve(textproto.NewConn(conn))
	}()
	return s
}

func (s *smtpServer) serve(c *textproto.Conn) {
	c.PrintfLine("220 localhost ESMTP")
	for {
		line, err := c.ReadLine()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		verb, _, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO", "HELO":
			c.PrintfLine("250 localhost")
		case "MAIL", "RCPT":
			if !envelopeCommand.MatchString(line) {
				c.PrintfLine("501 5.1.3 Bad address syntax")
				continue
			}
			c.PrintfLine("250 OK")
		case "DATA":
			c.PrintfLine("354 Go ahead")
			data, err := c.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(data)
			s.mu.Unlock()
			c.PrintfLine("250 OK")
		case "QUIT":
			c.PrintfLine("221 Bye")
			return
		default:
			c.PrintfLine("502 Not implemented")
		}
	}
}

func (s *smtpServer) session() ([]string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...), s.data
}

func (s *smtpServer) mailer(t *testing.T) *mail.SMTPMailer {
	t.Helper()

	host, port, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	m, err := mail.NewSMTPMailer(mail.SMTPConfig{Host: host, Port: p, From: "Meetapp <noreply@meetapp.local>"})
	require.NoError(t, err)
	return m
}

func TestSubscriptionMailOverSMTP(t *testing.T) {
	t.Run("delivers to the organizer", func(t *testing.T) {
		server := startSMTPServer(t)

		job := queue.Job{ID: "j1", Key: SubscriptionMailKey}
		job.Payload, _ = json.Marshal(sampleMail())

		err := SubscriptionMailHandler(server.mailer(t), discard)(context.Background(), job)
		require.NoError(t, err)

		commands, data := server.session()
		assert.Contains(t, commands, "MAIL FROM:<noreply@meetapp.local>")
		assert.Contains(t, commands, "RCPT TO:<olivia@example.com>")
		assert.Contains(t, data, "From: \"Meetapp\" <noreply@meetapp.local>\n")
		assert.Contains(t, data, "To: \"Olivia\" <olivia@example.com>\n")
		assert.Contains(t, data, "Subject: New subscription: Go Night\n")
	})

	t.Run("hostile title stays in the subject", func(t *testing.T) {
		server := startSMTPServer(t)

		m := sampleMail()
		m.Meetup.Title = "Go\r\nBcc: victim@evil.example"
		m.Organizer.Name = "Olivia\r\nBcc: victim@evil.example"
		job := queue.Job{ID: "j2", Key: SubscriptionMailKey}
		job.Payload, _ = json.Marshal(m)

		err := SubscriptionMailHandler(server.mailer(t), discard)(context.Background(), job)
		require.NoError(t, err)

		commands, data := server.session()
		assert.Contains(t, commands, "RCPT TO:<olivia@example.com>")

		headers, _, found := strings.Cut(data, "\n\n")
		require.True(t, found)
		for _, line := range strings.Split(headers, "\n") {
			assert.False(t, strings.HasPrefix(line, "Bcc:"), "header line %q", line)
		}
	})
}
