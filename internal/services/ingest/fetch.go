package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/ticketvault/internal/config"
	"github.com/terminal-bench/ticketvault/internal/models"
)

const fetchAttempts = 3

// Fetcher pulls ticket pages from the external support-ticket API.
type Fetcher struct {
	baseURL string
	client  *http.Client

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher against the external API base URL.
func NewFetcher(baseURL string) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: config.ExternalFetchTimeout},
		sleep:   sleepCtx,
	}
}

// FetchPage fetches one page of tickets with up to fetchAttempts attempts.
// A 429 response honours Retry-After (default 60s) and does not consume an
// attempt; other HTTP and transport failures back off exponentially and the
// final one propagates.
func (f *Fetcher) FetchPage(ctx context.Context, tenantID string, page int) (*models.TicketPage, error) {
	endpoint := fmt.Sprintf("%s/external/support-tickets?tenant_id=%s&page=%d",
		f.baseURL, url.QueryEscape(tenantID), page)

	attempt := 0
	for {
		result, retryAfter, err := f.fetchOnce(ctx, endpoint)
		if err == nil && retryAfter == 0 {
			return result, nil
		}

		if retryAfter > 0 {
			logrus.WithFields(logrus.Fields{
				"tenant_id":   tenantID,
				"page":        page,
				"retry_after": retryAfter.Seconds(),
			}).Warn("external API rate limited, waiting")
			if err := f.sleep(ctx, retryAfter); err != nil {
				return nil, err
			}
			continue
		}

		attempt++
		logrus.WithError(err).WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"page":      page,
			"attempt":   attempt,
		}).Error("failed to fetch page")
		if attempt >= fetchAttempts {
			return nil, fmt.Errorf("fetch page %d for %s: %w", page, tenantID, err)
		}

		backoff := time.Duration(1<<(attempt-1)) * time.Second
		if err := f.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// fetchOnce performs one request. A non-zero retryAfter signals a 429.
func (f *Fetcher) fetchOnce(ctx context.Context, endpoint string) (*models.TicketPage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60
		if header := resp.Header.Get("Retry-After"); header != "" {
			if n, err := strconv.Atoi(header); err == nil {
				retryAfter = n
			}
		}
		return nil, time.Duration(retryAfter) * time.Second, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, fmt.Errorf("external API returned %d", resp.StatusCode)
	}

	var page models.TicketPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, 0, fmt.Errorf("decode page: %w", err)
	}
	return &page, 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
