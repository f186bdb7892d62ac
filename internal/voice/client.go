package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Bridger connects an accepted call to an agent's contact endpoint on the
// voice provider. Implementations must be safe for concurrent use.
type Bridger interface {
	Bridge(ctx context.Context, providerCallID, agentEndpoint string) error
}

// Client sends transfer requests to the voice provider API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new client pointing at the given provider base URL
// (e.g. "http://localhost:9090"). Requests that outlive the timeout are
// aborted and reported as bridge failures.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// transferRequest is the JSON body sent to the provider.
type transferRequest struct {
	CallID   string `json:"callId"`
	Endpoint string `json:"endpoint"`
}

// Bridge asks the provider to connect the live call to the agent endpoint.
func (c *Client) Bridge(ctx context.Context, providerCallID, agentEndpoint string) error {
	body, err := json.Marshal(transferRequest{
		CallID:   providerCallID,
		Endpoint: agentEndpoint,
	})
	if err != nil {
		return fmt.Errorf("marshal transfer request: %w", err)
	}

	url := c.baseURL + "/v1/calls/transfer"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s returned status %d", url, resp.StatusCode)
	}

	c.logger.Debug().
		Str("provider_call_id", providerCallID).
		Str("endpoint", agentEndpoint).
		Msg("call bridged to agent")
	return nil
}

// NoopBridger skips the provider call entirely. Used in development when no
// voice provider is configured.
type NoopBridger struct {
	Logger zerolog.Logger
}

func (n *NoopBridger) Bridge(ctx context.Context, providerCallID, agentEndpoint string) error {
	n.Logger.Debug().
		Str("provider_call_id", providerCallID).
		Str("endpoint", agentEndpoint).
		Msg("voice provider disabled, skipping bridge")
	return nil
}
