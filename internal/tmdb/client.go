package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// Client calls TheMovieDB. One attempt per request, bounded by the HTTP
// client timeout; failures surface immediately to the caller.
type Client struct {
	baseURL  string
	language string
	client   *http.Client
}

// NewClient builds a client against the public TMDB API.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL overrides the API base URL. Tests point this at a
// local server.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:  baseURL,
		language: "es-ES",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type popularEnvelope struct {
	Page         int             `json:"page"`
	Results      json.RawMessage `json:"results"`
	TotalPages   int             `json:"total_pages"`
	TotalResults int             `json:"total_results"`
}

// Popular fetches one page of popular movies or TV shows and returns the
// raw results array. Envelope fields beyond results are discarded.
func (c *Client) Popular(ctx context.Context, apiKey string, kind domain.MediaKind, page int) (json.RawMessage, error) {
	endpoint := "/movie/popular"
	if kind == domain.KindSeries {
		endpoint = "/tv/popular"
	}
	if page <= 0 {
		page = 1
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	q := u.Query()
	q.Set("api_key", apiKey)
	q.Set("language", c.language)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error carries the full request URL, api_key included.
		// Keep only the transport cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb returned %d", resp.StatusCode)
	}

	var envelope popularEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Results == nil {
		return json.RawMessage("[]"), nil
	}
	return envelope.Results, nil
}
