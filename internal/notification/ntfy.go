package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultNtfyServer is the public ntfy instance.
const DefaultNtfyServer = "https://ntfy.sh"

// NtfyConfig configures the ntfy push dispatcher.
type NtfyConfig struct {
	Server     string
	Topic      string
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// NtfyDispatcher publishes to an ntfy topic.
type NtfyDispatcher struct {
	http  *resty.Client
	topic string
}

func NewNtfyDispatcher(cfg NtfyConfig) (*NtfyDispatcher, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("ntfy topic is required")
	}
	server := cfg.Server
	if server == "" {
		server = DefaultNtfyServer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(time.Second)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &NtfyDispatcher{http: client, topic: cfg.Topic}, nil
}

// Send posts the body with Title, Priority and Tags headers.
func (d *NtfyDispatcher) Send(ctx context.Context, n Notification) error {
	req := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody(n.Body)
	if n.Title != "" {
		req.SetHeader("Title", n.Title)
	}
	if n.Priority != 0 {
		req.SetHeader("Priority", strconv.Itoa(int(n.Priority)))
	}
	if len(n.Tags) > 0 {
		req.SetHeader("Tags", strings.Join(n.Tags, ","))
	}

	resp, err := req.Post("/" + d.topic)
	if err != nil {
		return fmt.Errorf("ntfy publish: %w", err)
	}
	if resp.IsError() {
		err := fmt.Errorf("ntfy publish: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
		if rejected(resp.StatusCode()) {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return err
	}
	return nil
}

// rejected reports client errors that will not go away on retry.
func rejected(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}
