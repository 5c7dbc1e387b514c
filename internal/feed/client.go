package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the public memes list the catalog is built from.
const DefaultEndpoint = "https://solanapulseserver-production.up.railway.app/memeslist"

const (
	userAgent    = "nubfinder/1.0"
	maxBodyBytes = 32 << 20
)

var (
	// ErrNetwork reports that the feed could not be reached or answered with a non-2xx status.
	ErrNetwork = errors.New("feed unreachable")
	// ErrDecode reports a response that is not a list of items.
	ErrDecode = errors.New("malformed feed payload")
)

type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch performs one GET against the feed and returns the items in feed order.
// It never retries; the refresh loop's next tick is the retry.
func (c *Client) Fetch(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrDecode, maxBodyBytes)
	}

	return Decode(body)
}

// Decode parses a feed payload. Every entry must carry a string source and
// an array of string tags; unknown fields are ignored.
func Decode(data []byte) ([]Item, error) {
	var raw []apiItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected an array", ErrDecode)
	}

	items := make([]Item, 0, len(raw))
	for i, ai := range raw {
		item, err := convertItem(ai)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrDecode, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func convertItem(ai apiItem) (Item, error) {
	if ai.Source == nil {
		return Item{}, errors.New("missing source")
	}
	if ai.Tags == nil {
		return Item{}, errors.New("missing tags")
	}
	return Item{
		Source: *ai.Source,
		Tags:   append([]string(nil), (*ai.Tags)...),
	}, nil
}
