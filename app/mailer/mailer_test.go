package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example/regcheck-api/app/config"
)

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSMailerQueuesMessage(t *testing.T) {
	q := &fakeSQS{}
	m := NewSQSMailer(q, "https://sqs.test/mail")

	require.NoError(t, m.Send(context.Background(), "user@x.test", "Ticket VH-1", "hello"))
	require.NotNil(t, q.input)
	assert.Equal(t, "https://sqs.test/mail", *q.input.QueueUrl)

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(*q.input.MessageBody), &msg))
	assert.Equal(t, Message{To: "user@x.test", Subject: "Ticket VH-1", Body: "hello"}, msg)

	q.err = errors.New("throttled")
	assert.Error(t, m.Send(context.Background(), "user@x.test", "s", "b"))
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{SMTPHost: "smtp.test", SMTPPort: 2525, From: "support@x.test", SMTPUser: "u", SMTPPassword: "p"})
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m.send = func(_ context.Context, addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "user@x.test", "Re: help\nBcc: evil@x.test", "line1\nline2"))
	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, []string{"user@x.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Re: help Bcc: evil@x.test\r\n")
	assert.Contains(t, gotMsg, "line1\r\nline2")
	assert.NotNil(t, m.auth)
}

func TestNewFallsBackToLogMailer(t *testing.T) {
	m, err := New(context.Background(), config.MailConfig{})
	require.NoError(t, err)
	assert.IsType(t, LogMailer{}, m)

	m, err = New(context.Background(), config.MailConfig{SMTPHost: "smtp.test", SMTPPort: 25})
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)
}

// stalledSMTPServer accepts connections and never sends a greeting.
func stalledSMTPServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func TestSMTPMailerGivesUpAtContextDeadline(t *testing.T) {
	host, port := stalledSMTPServer(t)
	m := NewSMTPMailer(config.MailConfig{SMTPHost: host, SMTPPort: port, From: "support@x.test"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := m.Send(ctx, "user@x.test", "s", "b")

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSMTPMailerStopsOnCancel(t *testing.T) {
	host, port := stalledSMTPServer(t)
	m := NewSMTPMailer(config.MailConfig{SMTPHost: host, SMTPPort: port, From: "support@x.test"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Send(ctx, "user@x.test", "s", "b") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after cancel")
	}
}
