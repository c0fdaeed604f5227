// Package enricher performs best-effort full-text extraction for new items.
package enricher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

// maxArticleBytes caps how much of an article page is read into memory.
const maxArticleBytes = 5 << 20

// Config controls the enrichment client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Readability fetches an item's page and extracts the main content with
// go-readability. Every failure is soft: callers receive an error they are
// expected to log and ignore, and the item is stored with whatever content
// the feed entry itself carried.
type Readability struct {
	client    *http.Client
	sanitizer *bluemonday.Policy
	userAgent string
	logger    *zap.Logger
}

// New constructs a Readability enricher.
func New(cfg Config, logger *zap.Logger) *Readability {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Readability{
		client:    &http.Client{Timeout: timeout},
		sanitizer: bluemonday.UGCPolicy(),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Extract downloads url and returns sanitized article HTML plus plain text.
func (e *Readability) Extract(ctx context.Context, url string) (reader.Enrichment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return reader.Enrichment{}, fmt.Errorf("build article request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return reader.Enrichment{}, fmt.Errorf("fetch article %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return reader.Enrichment{}, fmt.Errorf("fetch article %s: status %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return reader.Enrichment{}, fmt.Errorf("read article %s: %w", url, err)
	}

	cleaned := precleanHTML(string(raw))
	article, err := readability.FromReader(strings.NewReader(cleaned), nil)
	if err != nil {
		return reader.Enrichment{}, fmt.Errorf("readability parse %s: %w", url, err)
	}

	var htmlBuf, textBuf strings.Builder
	if err := article.RenderHTML(&htmlBuf); err != nil {
		e.logger.Debug("render article html failed", zap.String("url", url), zap.Error(err))
	}
	if err := article.RenderText(&textBuf); err != nil {
		e.logger.Debug("render article text failed", zap.String("url", url), zap.Error(err))
	}

	out := reader.Enrichment{
		HTML: e.sanitizer.Sanitize(strings.TrimSpace(htmlBuf.String())),
		Text: strings.TrimSpace(textBuf.String()),
	}
	if out.HTML == "" && out.Text == "" {
		return reader.Enrichment{}, fmt.Errorf("readability produced no content for %s", url)
	}
	return out, nil
}

// precleanHTML strips non-content elements before readability runs so
// navigation chrome cannot win the content scoring.
func precleanHTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script, style, noscript, aside, nav, header, footer").Remove()
	doc.Find("iframe, embed, object, video, audio, canvas").Remove()
	cleaned, err := doc.Html()
	if err != nil || cleaned == "" {
		return raw
	}
	return cleaned
}
