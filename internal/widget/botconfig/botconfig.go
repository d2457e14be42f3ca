// Package botconfig loads the bot metadata a widget needs before it mounts.
package botconfig

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/zhouzirui/chatwidget/internal/widget/errs"
)

const (
	unauthorizedMessage = "Unauthorized or invalid API key"
	loadFailedMessage   = "Failed to load chatbot config"
	connectMessage      = "Failed to connect to chatbot service"
)

// Config describes the bot behind a widget.
type Config struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	ThemeColor string `json:"themeColor"`
}

type envelope struct {
	Result *Config `json:"result"`
}

// Client fetches bot config from a fixed endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient returns a Client for endpoint. A nil httpClient uses the default.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, client: httpClient}
}

// Fetch loads the config for credential. Unauthorized responses are auth
// errors; every other failure is a config error. Both are fatal.
func (c *Client) Fetch(ctx context.Context, credential string) (Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Config{}, errs.Config(errors.Wrap(err, "build config request"), loadFailedMessage)
	}
	req.Header.Set("X-Api-Key", credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Config{}, errs.Config(errors.Wrap(err, "get config"), connectMessage)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Config{}, errs.Auth(unauthorizedMessage)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Config{}, errs.Config(errors.Errorf("config endpoint returned %s", resp.Status), loadFailedMessage)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Config{}, errs.Config(errors.Wrap(err, "decode config"), loadFailedMessage)
	}
	if env.Result == nil {
		return Config{}, errs.Config(errors.New("config response has no result"), loadFailedMessage)
	}
	return *env.Result, nil
}
