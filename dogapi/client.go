// Package dogapi is a thin client for the Dog CEO image-lookup API
// (https://dog.ceo/dog-api/). Every call performs exactly one outbound fetch
// and reshapes the response envelope; there are no retries and no caching.
package dogapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Error kinds surfaced by the client. Callers are expected to match with
// errors.Is and convert to an error-flagged tool result rather than failing
// the protocol exchange.
var (
	// ErrUpstreamUnavailable marks network failures and non-2xx responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUnexpectedShape marks responses that do not match the documented
	// envelope (status != success, empty payload, wrong message type).
	ErrUnexpectedShape = errors.New("unexpected upstream response shape")
)

// envelope is the fixed Dog CEO response wrapper. The message field is a
// string, an array of strings, or a map of breed names depending on the
// endpoint; this shape is load-bearing for the tool layer.
type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
}

// Client issues lookups against one Dog CEO deployment.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New constructs a Client for the given base URL, e.g. "https://dog.ceo/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RandomImage fetches one random image locator, optionally constrained to a
// breed. The empty breed selects across all breeds.
func (c *Client) RandomImage(ctx context.Context, breed string) (string, error) {
	endpoint := c.baseURL + "/breeds/image/random"
	if breed != "" {
		endpoint = c.baseURL + "/breed/" + url.PathEscape(breed) + "/images/random"
	}
	raw, err := c.fetch(ctx, endpoint)
	if err != nil {
		return "", err
	}
	var img string
	if err := json.Unmarshal(raw, &img); err != nil || img == "" {
		return "", fmt.Errorf("%w: expected image URL string", ErrUnexpectedShape)
	}
	return img, nil
}

// BreedImages fetches count random image locators for a breed.
func (c *Client) BreedImages(ctx context.Context, breed string, count int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/breed/%s/images/random/%d", c.baseURL, url.PathEscape(breed), count)
	raw, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var imgs []string
	if err := json.Unmarshal(raw, &imgs); err != nil || len(imgs) == 0 {
		return nil, fmt.Errorf("%w: expected non-empty image URL array", ErrUnexpectedShape)
	}
	return imgs, nil
}

// ListBreeds fetches the full breed catalog keyed by primary breed name.
func (c *Client) ListBreeds(ctx context.Context) (map[string][]string, error) {
	raw, err := c.fetch(ctx, c.baseURL+"/breeds/list/all")
	if err != nil {
		return nil, err
	}
	var breeds map[string][]string
	if err := json.Unmarshal(raw, &breeds); err != nil || len(breeds) == 0 {
		return nil, fmt.Errorf("%w: expected breed map", ErrUnexpectedShape)
	}
	return breeds, nil
}

// fetch performs the single outbound GET and unwraps the envelope.
func (c *Client) fetch(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	if env.Status != "success" || len(env.Message) == 0 {
		return nil, fmt.Errorf("%w: status %q", ErrUnexpectedShape, env.Status)
	}
	return env.Message, nil
}

// BreedFromImageURL recovers the breed label from an image locator by
// splitting the URL on "/" and reading index 4, matching the upstream's
// ".../breeds/<breed>/<file>" layout. This is intentionally index-based for
// compatibility; a structural change upstream yields an empty string.
func BreedFromImageURL(raw string) string {
	parts := strings.Split(raw, "/")
	if len(parts) <= 4 {
		return ""
	}
	return parts[4]
}
