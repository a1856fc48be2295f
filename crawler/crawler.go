package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"ragstore/pkg/retry"
)

const maxBodySize = 10 << 20

// Config holds crawler tunables. Zero values fall back to defaults.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	MaxRetries     int
	// ExcludedPatterns are substrings of a URL path that reject a link,
	// e.g. "/login" or "/cart". Loaded from the exclusions file.
	ExcludedPatterns []string
}

func DefaultConfig() *Config {
	return &Config{
		UserAgent:      "ragstore-crawler/1.0",
		RequestTimeout: 15 * time.Second,
		RequestDelay:   500 * time.Millisecond,
		MaxRetries:     2,
	}
}

// Page is one successfully fetched and extracted page, in visitation
// order.
type Page struct {
	URL   string
	Depth int
	Text  string
}

type Crawler struct {
	client    *http.Client
	extractor *ContentExtractor
	config    *Config
	logger    *zap.Logger
}

func New(client *http.Client, extractor *ContentExtractor, config *Config, logger *zap.Logger) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig().UserAgent
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: config.RequestTimeout}
	}
	return &Crawler{
		client:    client,
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

type workItem struct {
	url   *url.URL
	depth int
}

// Crawl fetches seedURL and same-registrable-domain links breadth-first
// up to maxDepth. A page at depth d only expands its links when
// d < maxDepth. maxPages bounds the number of fetch attempts; values
// below 1 leave the crawl bounded by depth alone. Both limits are hard
// stops. The visited set is scoped to this invocation, so concurrent
// crawls do not interfere and every normalized URL is fetched at most
// once. Per-URL fetch failures terminate only that branch.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, maxDepth, maxPages int) ([]Page, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed url %q: %w", seedURL, err)
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", seed.Scheme)
	}
	domain := registrableDomain(seed.Host)

	visited := map[string]struct{}{normalizeURL(seed): {}}
	queue := []workItem{{url: seed, depth: 0}}

	var pages []Page
	fetched := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		if maxPages > 0 && fetched >= maxPages {
			c.logger.Info("page budget reached",
				zap.Int("max_pages", maxPages),
				zap.Int("queued", len(queue)))
			break
		}

		item := queue[0]
		queue = queue[1:]
		fetched++

		body, err := c.fetch(ctx, item.url)
		if err != nil {
			c.logger.Warn("fetch failed",
				zap.String("url", item.url.String()),
				zap.Error(err))
			continue
		}

		text := c.extractor.ExtractText(body, item.url)
		if text != "" {
			pages = append(pages, Page{URL: item.url.String(), Depth: item.depth, Text: text})
		}

		if item.depth < maxDepth {
			for _, link := range c.collectLinks(body, item.url) {
				if !c.admit(link, domain) {
					continue
				}
				key := normalizeURL(link)
				if _, ok := visited[key]; ok {
					continue
				}
				visited[key] = struct{}{}
				queue = append(queue, workItem{url: link, depth: item.depth + 1})
			}
		}

		if len(queue) > 0 && c.config.RequestDelay > 0 {
			timer := time.NewTimer(c.config.RequestDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return pages, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return pages, nil
}

func (c *Crawler) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	policy := retry.Policy{MaxAttempts: c.config.MaxRetries, BaseDelay: 250 * time.Millisecond}

	var body []byte
	err := policy.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.config.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") &&
			!strings.Contains(contentType, "text/plain") {
			return fmt.Errorf("non-text content type %q", contentType)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Crawler) collectLinks(body []byte, base *url.URL) []*url.URL {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		c.logger.Debug("failed to parse page for links",
			zap.String("url", base.String()),
			zap.Error(err))
		return nil
	}

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref))
	})
	return links
}
