package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/dvloznov/amazon-finance-sync/internal/config"
	"github.com/dvloznov/amazon-finance-sync/internal/logger"
)

const financialEventsPath = "/finances/v0/financialEvents"

// ErrThrottled marks a request rejected by SP-API rate limiting (HTTP 429,
// QuotaExceeded). It is retried with exponential backoff before giving up.
var ErrThrottled = errors.New("spapi: request throttled")

// Client talks to the SP-API Finances endpoint. The LWA refresh token is
// exchanged/renewed through an oauth2 TokenSource; the access token travels
// in the x-amz-access-token header on every request.
type Client struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	endpoint   string
	limiter    *rate.Limiter

	// Retry policy for throttled requests: up to 5 attempts,
	// exponential wait between 2s and 60s.
	maxAttempts     uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewClient builds a Client from the loaded configuration.
func NewClient(cfg config.Config) *Client {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.LWAEndpoint},
	}
	tokens := oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		// listFinancialEvents is limited to 0.5 requests per second.
		limiter:         rate.NewLimiter(rate.Limit(0.5), 1),
		maxAttempts:     5,
		initialInterval: 2 * time.Second,
		maxInterval:     60 * time.Second,
	}
}

// FetchFinancialEvents retrieves all financial events posted in [start, end),
// following NextToken pagination until exhausted. Each event-list key of each
// page becomes one single-key envelope in the result.
//
// A non-throttle failure mid-pagination stops fetching and returns whatever
// was already collected; it never fails the run.
func (c *Client) FetchFinancialEvents(ctx context.Context, start, end time.Time) ([]map[string]any, error) {
	log := logger.FromContext(ctx)

	var events []map[string]any
	nextToken := ""
	page := 0

	for {
		params := url.Values{}
		if nextToken != "" {
			params.Set("NextToken", nextToken)
		} else {
			params.Set("PostedAfter", start.UTC().Format(time.RFC3339))
			params.Set("PostedBefore", end.UTC().Format(time.RFC3339))
		}

		page++
		log.Debug().Int("page", page).Msg("Fetching financial events page")

		payload, err := c.listFinancialEvents(ctx, params)
		if err != nil {
			log.Warn().Err(err).Int("page", page).
				Msg("Stopping pagination early, keeping pages fetched so far")
			break
		}

		events = append(events, splitEnvelopes(payload)...)

		nt, _ := payload["NextToken"].(string)
		if nt == "" {
			break
		}
		nextToken = nt
	}

	log.Info().Int("envelopes", len(events)).Int("pages", page).
		Msg("Finished fetching financial events")
	return events, nil
}

// listFinancialEvents performs one page fetch, retrying throttled responses.
func (c *Client) listFinancialEvents(ctx context.Context, params url.Values) (map[string]any, error) {
	var payload map[string]any

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		p, err := c.doListRequest(ctx, params)
		if err != nil {
			if errors.Is(err, ErrThrottled) {
				return err
			}
			return backoff.Permanent(err)
		}
		payload = p
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = c.maxInterval

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) doListRequest(ctx context.Context, params url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+financialEventsPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("obtain LWA token: %w", err)
	}
	req.Header.Set("x-amz-access-token", token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list financial events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list financial events: unexpected status %d", resp.StatusCode)
	}

	// UseNumber keeps charge amounts as exact digit strings instead of
	// lossy float64 values.
	var body struct {
		Payload map[string]any `json:"payload"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Payload == nil {
		return nil, fmt.Errorf("decode response: missing payload")
	}
	return body.Payload, nil
}

// splitEnvelopes breaks a page payload's FinancialEvents object into one
// single-key envelope per event-list key.
func splitEnvelopes(payload map[string]any) []map[string]any {
	financialEvents, ok := payload["FinancialEvents"].(map[string]any)
	if !ok {
		return nil
	}

	var envelopes []map[string]any
	for key, value := range financialEvents {
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		envelopes = append(envelopes, map[string]any{key: list})
	}
	return envelopes
}
