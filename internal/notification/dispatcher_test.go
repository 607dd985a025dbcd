package notification

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/smukkama/home-monitor/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sample = Notification{
	Kind:      KindAlert,
	DeviceID:  "D1",
	Parameter: "battery",
	Title:     "Battery Warning!",
	Body:      "Cabin Kitchen is at 15%.",
	Priority:  PriorityHigh,
	Tags:      []string{"warning", "battery"},
}

func TestNtfyDispatcher(t *testing.T) {
	var got *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, err := NewNtfyDispatcher(NtfyConfig{Server: srv.URL + "/", Topic: "cabin_temp", Token: "tk"})
	require.NoError(t, err)
	require.NoError(t, d.Send(context.Background(), sample))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/cabin_temp", got.URL.Path)
	assert.Equal(t, "Battery Warning!", got.Header.Get("Title"))
	assert.Equal(t, "4", got.Header.Get("Priority"))
	assert.Equal(t, "warning,battery", got.Header.Get("Tags"))
	assert.Equal(t, "Bearer tk", got.Header.Get("Authorization"))
	assert.Equal(t, sample.Body, body)
}

func TestNtfyDispatcher_Errors(t *testing.T) {
	_, err := NewNtfyDispatcher(NtfyConfig{})
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is reserved", http.StatusForbidden)
	}))
	defer srv.Close()

	d, err := NewNtfyDispatcher(NtfyConfig{Server: srv.URL, Topic: "x"})
	require.NoError(t, err)
	err = d.Send(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestNtfyDispatcher_RetryableStatus(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		d, err := NewNtfyDispatcher(NtfyConfig{Server: srv.URL, Topic: "x"})
		require.NoError(t, err)
		err = d.Send(context.Background(), sample)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRejected, status)
		srv.Close()
	}
}

type fakePublisher struct {
	keys   []string
	values [][]byte
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func TestKafkaDispatcher(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafkaDispatcher(pub)
	d.now = func() time.Time { return t0 }

	require.NoError(t, d.Send(context.Background(), sample))
	require.NoError(t, d.Send(context.Background(), Notification{Kind: KindDigest, Title: "Weekly Report"}))

	assert.Equal(t, []string{"D1", KindDigest}, pub.keys)

	msg, err := protocol.DecodeNotification(pub.values[0])
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, t0, msg.CreatedAt)
	assert.Equal(t, sample, FromMessage(msg))

	pub.err = errors.New("broker down")
	assert.Error(t, d.Send(context.Background(), sample))
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMQTT struct {
	topic   string
	qos     byte
	payload []byte
	token   *fakeToken
}

func (c *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.topic = topic
	c.qos = qos
	c.payload = payload.([]byte)
	return c.token
}

func TestMQTTDispatcher(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{}}
	d := newMQTTDispatcher(client, "home/notifications", 1)

	require.NoError(t, d.Send(context.Background(), sample))
	assert.Equal(t, "home/notifications", client.topic)
	assert.Equal(t, byte(1), client.qos)

	msg, err := protocol.DecodeNotification(client.payload)
	require.NoError(t, err)
	assert.Equal(t, "Battery Warning!", msg.Title)

	client.token = &fakeToken{timeout: true}
	assert.EqualError(t, d.Send(context.Background(), sample), "publish timeout")

	client.token = &fakeToken{err: errors.New("not connected")}
	assert.ErrorContains(t, d.Send(context.Background(), sample), "not connected")

	assert.NoError(t, d.Close())
}

func TestEmailNotifier(t *testing.T) {
	var (
		addr string
		to   []string
		msg  string
	)
	e := NewEmailNotifier(SMTPConfig{
		Host: "smtp.example.com", Port: 587, Username: "u", Password: "p",
		From: "monitor@example.com", To: "me@example.com",
	}, zap.NewNop())
	e.now = func() time.Time { return t0 }
	e.sendMail = func(a string, _ smtp.Auth, _ string, rcpt []string, m []byte) error {
		addr, to, msg = a, rcpt, string(m)
		return nil
	}

	require.NoError(t, e.Send(context.Background(), sample))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, []string{"me@example.com"}, to)
	assert.Contains(t, msg, "Subject: [ALERT] Battery Warning!\r\n")
	assert.Contains(t, msg, "Battery Warning!\n================\n\nCabin Kitchen is at 15%.")
	assert.Contains(t, msg, "Device: D1 (battery)")

	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 auth failed") }
	assert.Error(t, e.Send(context.Background(), sample))
}

func TestEmailNotifier_Unconfigured(t *testing.T) {
	e := NewEmailNotifier(SMTPConfig{}, zap.NewNop())
	called := false
	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error { called = true; return nil }

	assert.False(t, e.Configured())
	assert.NoError(t, e.Send(context.Background(), sample))
	assert.False(t, called)
	assert.Error(t, e.TestConnection())
}

func TestRecorderAndLog(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Send(context.Background(), sample))
	assert.Equal(t, []Notification{sample}, r.Sent())

	r.Err = errors.New("down")
	assert.Error(t, r.Send(context.Background(), sample))
	assert.Len(t, r.Sent(), 1)

	assert.NoError(t, NewLogDispatcher(zap.NewNop()).Send(context.Background(), sample))
}
