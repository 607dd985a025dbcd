// Package airthings is a small client for the Airthings consumer API: a
// client-credentials token plus the device list and latest-samples endpoints.
package airthings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultTokenURL = "https://accounts-api.airthings.com/v1/token"
	DefaultBaseURL  = "https://ext-api.airthings.com/v1"

	tokenScope = "read:device:current_values"
)

// Config holds the API endpoints and client credentials.
type Config struct {
	TokenURL     string
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RetryCount   int
}

// Device is one entry of the /devices listing.
type Device struct {
	ID         string  `json:"id"`
	DeviceType string  `json:"deviceType"`
	Location   Named   `json:"location"`
	Segment    Segment `json:"segment"`
}

type Named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Segment struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Samples is the "data" object of latest-samples. Keys vary by device model,
// so the values are kept raw and interpreted by the normalizer.
type Samples map[string]any

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}

type samplesResponse struct {
	Data Samples `json:"data"`
}

// Client talks to the Airthings API.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates an API client. Zero-valued endpoint settings fall back
// to the public Airthings URLs.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		cfg:    cfg,
		http:   client,
		logger: logger,
		now:    time.Now,
	}
}

// Devices lists every device visible to the credentials.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var out devicesResponse
	if err := c.get(ctx, "/devices", &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// LatestSamples fetches the most recent sample set for a device serial.
func (c *Client) LatestSamples(ctx context.Context, serial string) (Samples, error) {
	var out samplesResponse
	if err := c.get(ctx, "/devices/"+serial+"/latest-samples", &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("latest-samples for %s: empty data", serial)
	}
	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(result).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.StatusCode() == 401 {
		c.invalidateToken()
	}
	if resp.IsError() {
		return fmt.Errorf("%s returned %s", path, resp.Status())
	}
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      tokenScope,
		}).
		SetResult(&out).
		Post(c.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	if resp.IsError() || out.AccessToken == "" {
		c.logger.Error("Airthings token request rejected",
			zap.Int("status_code", resp.StatusCode()),
		)
		return "", fmt.Errorf("failed to obtain access token: %s", resp.Status())
	}

	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.token = out.AccessToken
	// refresh a little early so a long cycle never uses an expired token
	c.tokenExpiry = c.now().Add(ttl - ttl/10)

	c.logger.Debug("obtained Airthings access token", zap.Duration("ttl", ttl))
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
