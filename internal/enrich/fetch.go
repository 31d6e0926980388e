package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/store"
)

// maxPageBytes caps how much of an enrichment page is read.
const maxPageBytes = 2 << 20

// userAgent mirrors a desktop browser; job boards serve bot user agents
// a login wall instead of the posting.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// fetcher retrieves and parses job-posting pages.
type fetcher struct {
	client *http.Client
}

func newFetcher(cfg model.EnrichmentConfig) *fetcher {
	return &fetcher{
		client: &http.Client{
			Timeout: cfg.RequestTimeout(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= cfg.MaxRedirects {
					return fmt.Errorf(
						"stopped after %d redirects", cfg.MaxRedirects,
					)
				}
				return nil
			},
		},
	}
}

// fetch downloads the page at url and extracts enrichment fields. A
// page without a recognizable description is a failure: that is what a
// login wall or block page looks like.
func (f *fetcher) fetch(ctx context.Context, url string) (store.Enrichment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return store.Enrichment{}, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return store.Enrichment{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return store.Enrichment{}, fmt.Errorf(
			"fetching %s: status %d", url, resp.StatusCode,
		)
	}

	enrichment := parsePage(io.LimitReader(resp.Body, maxPageBytes))
	if enrichment.Description == "" {
		return store.Enrichment{}, fmt.Errorf("no job description found at %s", url)
	}

	return enrichment, nil
}
