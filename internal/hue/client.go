// Package hue drives a single light on a Philips Hue bridge through the
// bridge's REST API.
package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxBrightness is the top of the bridge's brightness scale.
const MaxBrightness = 254

const defaultTimeout = 5 * time.Second

// ErrActuation wraps every failed state update.
var ErrActuation = errors.New("light update failed")

// StateCommand is the body of a light state update.
type StateCommand struct {
	Brightness int  `json:"bri"`
	On         bool `json:"on"`
}

// DeviceBrightness converts a percentage to the bridge scale. The fractional
// part is truncated; percentages outside [0,100] are clamped.
func DeviceBrightness(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return int(float64(percent) / 100 * MaxBrightness)
}

// NewStateCommand builds the command that switches the light on at percent.
func NewStateCommand(percent int) StateCommand {
	return StateCommand{Brightness: DeviceBrightness(percent), On: true}
}

// Config identifies the bridge, the credential and the light.
type Config struct {
	BridgeAddr string
	APIKey     string
	LightID    string
	Timeout    time.Duration
}

// Client issues state updates for one light.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.Named("hue"),
	}
}

// StateURL is the endpoint updated by SetBrightness. A bridge address
// without a scheme is reached over plain http.
func (c *Client) StateURL() string {
	base := strings.TrimRight(c.config.BridgeAddr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return fmt.Sprintf("%s/api/%s/lights/%s/state",
		base, url.PathEscape(c.config.APIKey), url.PathEscape(c.config.LightID))
}

// LightID returns the configured light identifier.
func (c *Client) LightID() string {
	return c.config.LightID
}

// SetBrightness switches the light on at percent. It makes exactly one
// request and succeeds only on HTTP 200.
func (c *Client) SetBrightness(ctx context.Context, percent int) error {
	cmd := NewStateCommand(percent)
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal state: %v", ErrActuation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.StateURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrActuation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("setting light brightness",
		zap.String("light", c.config.LightID),
		zap.Int("percent", percent),
		zap.Int("bri", cmd.Brightness))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActuation, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.logger.Debug("bridge response",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: bridge returned HTTP %d", ErrActuation, resp.StatusCode)
	}
	return nil
}
