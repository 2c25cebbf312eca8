package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/config"
)

var msg = ResetMessage{
	Email:     "owner@bistro.example",
	Token:     "tok en",
	ResetURL:  "https://bistro.example/admin/reset-password?lang=en",
	ExpiresAt: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
}

func TestLinkKeepsExistingQuery(t *testing.T) {
	link := msg.Link()
	assert.True(t, strings.HasPrefix(link, "https://bistro.example/admin/reset-password?"))
	assert.Contains(t, link, "lang=en")
	assert.Contains(t, link, "token=tok+en")
}

func TestSMTPNotifierBuildsMessage(t *testing.T) {
	n := NewSMTPNotifier(config.MailConfig{Host: "smtp.example", Port: 2525, User: "mailer", Pass: "pw", From: "noreply@bistro.example"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	n.sendMail = func(addr string, _ smtp.Auth, from string, to []string, body []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, body
		return nil
	}

	require.NoError(t, n.SendPasswordReset(context.Background(), msg))
	assert.Equal(t, "smtp.example:2525", gotAddr)
	assert.Equal(t, "noreply@bistro.example", gotFrom)
	assert.Equal(t, []string{msg.Email}, gotTo)
	assert.Contains(t, string(gotBody), "Subject: Reset your admin password")
	assert.Contains(t, string(gotBody), "token=tok+en")
}

func TestSMTPNotifierHonoursDeadline(t *testing.T) {
	n := NewSMTPNotifier(config.MailConfig{Host: "smtp.example"})
	release := make(chan struct{})
	defer close(release)
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.SendPasswordReset(ctx, msg), context.DeadlineExceeded)
}

type fakeProducer struct {
	topic string
	value []byte
	err   error
}

func (p *fakeProducer) ProduceMessage(_ context.Context, topic string, _, value []byte, _ map[string]string) error {
	p.topic, p.value = topic, value
	return p.err
}

func TestKafkaNotifier(t *testing.T) {
	p := &fakeProducer{}
	require.NoError(t, NewKafkaNotifier(p, "admin-notifications").SendPasswordReset(context.Background(), msg))
	assert.Equal(t, "admin-notifications", p.topic)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(p.value, &payload))
	assert.Equal(t, msg.Email, payload["email"])
	assert.Equal(t, msg.Link(), payload["link"])
}

type chanNotifier struct {
	got chan ResetMessage
	err error
}

func (c chanNotifier) SendPasswordReset(_ context.Context, m ResetMessage) error {
	c.got <- m
	return c.err
}

func TestDispatchRunsInBackground(t *testing.T) {
	n := chanNotifier{got: make(chan ResetMessage, 1), err: errors.New("smtp down")}
	Dispatch(n, time.Second, msg)

	select {
	case m := <-n.got:
		assert.Equal(t, msg.Email, m.Email)
	case <-time.After(time.Second):
		t.Fatal("notification was not dispatched")
	}
}
