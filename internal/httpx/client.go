package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-timing/internal/timing"
)

// Client reads the timing API; it backs the display poller.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError carries the error discriminant returned by the server.
type APIError struct {
	Status int
	Kind   string
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("timing api: %d %s: %s", e.Status, e.Kind, e.Msg)
}

func (c *Client) ListActive(ctx context.Context) ([]timing.Estimate, error) {
	var views []View
	if err := c.get(ctx, "/timings", &views); err != nil {
		return nil, err
	}
	out := make([]timing.Estimate, len(views))
	for i, v := range views {
		out[i] = v.Estimate
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e ErrorResp
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Kind: e.Error, Msg: e.Message}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
