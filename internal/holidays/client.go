package holidays

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"salonbook/backend/internal/domain"
)

const DefaultBaseURL = "https://date.nager.at"

// Client reads public holidays from a Nager.Date compatible API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: timeout,
	}
}

type publicHoliday struct {
	Date      string `json:"date"`
	LocalName string `json:"localName"`
	Name      string `json:"name"`
	Fixed     bool   `json:"fixed"`
}

// PublicHolidays fetches the holidays of one year. Each call is bounded by the client timeout.
func (c *Client) PublicHolidays(ctx context.Context, year int, country string) ([]domain.Holiday, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", c.baseURL, year, url.PathEscape(strings.ToUpper(country)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays %d/%s: %w", year, country, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch holidays %d/%s: unexpected status %d", year, country, resp.StatusCode)
	}

	var payload []publicHoliday
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode holidays %d/%s: %w", year, country, err)
	}

	out := make([]domain.Holiday, 0, len(payload))
	for _, p := range payload {
		d, err := time.Parse(time.DateOnly, p.Date)
		if err != nil {
			return nil, fmt.Errorf("decode holidays %d/%s: date %q: %w", year, country, p.Date, err)
		}
		name := p.LocalName
		if name == "" {
			name = p.Name
		}
		out = append(out, domain.Holiday{Date: d, Name: name, Recurring: p.Fixed})
	}
	return out, nil
}
