// Package parser normalizes raw feed documents into item candidates.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

// Field length caps matching the persisted schema.
const (
	maxGUIDLen      = 512
	maxFeedTitleLen = 512
	maxTitleLen     = 1024
	maxURLLen       = 2048
)

var imgSrcPattern = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)

// Parser wraps gofeed with the normalization rules of the engine.
type Parser struct {
	hasher reader.Hasher
}

// New constructs a Parser. The hasher backs the GUID fallback chain and
// per-item content hashes.
func New(hasher reader.Hasher) *Parser {
	return &Parser{hasher: hasher}
}

// Parse converts feed bytes into normalized candidates. A document gofeed
// cannot make sense of yields an error wrapping reader.ErrMalformedFeed;
// the caller records it as an error outcome rather than crashing.
func (p *Parser) Parse(data []byte, feedURL string) (reader.ParsedFeed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return reader.ParsedFeed{}, fmt.Errorf("%w: parse %s: %v", reader.ErrMalformedFeed, feedURL, err)
	}

	out := reader.ParsedFeed{
		Title: truncate(strings.TrimSpace(parsed.Title), maxFeedTitleLen),
		Items: make([]reader.ItemCandidate, 0, len(parsed.Items)),
	}
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		candidate, ok := p.normalize(entry)
		if !ok {
			continue
		}
		out.Items = append(out.Items, candidate)
	}
	return out, nil
}

func (p *Parser) normalize(entry *gofeed.Item) (reader.ItemCandidate, bool) {
	guid, ok := p.entryGUID(entry)
	if !ok {
		return reader.ItemCandidate{}, false
	}

	candidate := reader.ItemCandidate{
		GUID:        guid,
		Title:       truncate(strings.TrimSpace(entry.Title), maxTitleLen),
		URL:         truncate(strings.TrimSpace(entry.Link), maxURLLen),
		PublishedAt: entryTimestamp(entry),
	}

	// Entry-embedded content; the enricher may replace it later for new items.
	if entry.Content != "" {
		candidate.ContentHTML = entry.Content
	} else if entry.Description != "" {
		candidate.ContentHTML = entry.Description
	}

	candidate.ImageURL = truncate(entryImageURL(entry, candidate.ContentHTML), maxURLLen)
	candidate.ContentHash = p.contentHash(candidate)
	return candidate, true
}

// entryGUID derives the dedup key: the feed-provided id, then the entry
// link, then a hash of title plus best-available timestamp. Entries with
// none of the three are dropped; there is nothing stable to dedup on.
func (p *Parser) entryGUID(entry *gofeed.Item) (string, bool) {
	if guid := strings.TrimSpace(entry.GUID); guid != "" {
		return truncate(guid, maxGUIDLen), true
	}
	if link := strings.TrimSpace(entry.Link); link != "" {
		return truncate(link, maxGUIDLen), true
	}
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return "", false
	}
	base := title
	if ts := entryTimestamp(entry); ts != nil {
		base += ts.UTC().Format(time.RFC3339)
	}
	digest, err := p.hasher.Hash([]byte(base))
	if err != nil {
		return "", false
	}
	return digest, true
}

// entryTimestamp prefers the published date, falling back to updated.
// Absence is not an error; fetched_at provides fallback ordering.
func entryTimestamp(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		t := entry.PublishedParsed.UTC()
		return &t
	}
	if entry.UpdatedParsed != nil {
		t := entry.UpdatedParsed.UTC()
		return &t
	}
	return nil
}

// entryImageURL walks the media thumbnail extension, enclosures, the feed
// item image, then the first <img> in the content.
func entryImageURL(entry *gofeed.Item, contentHTML string) string {
	if media, ok := entry.Extensions["media"]; ok {
		if thumbs, ok := media["thumbnail"]; ok {
			for _, thumb := range thumbs {
				if url := thumb.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	if contentHTML != "" {
		if m := imgSrcPattern.FindStringSubmatch(contentHTML); m != nil {
			return m[1]
		}
	}
	return ""
}

func (p *Parser) contentHash(candidate reader.ItemCandidate) string {
	base := candidate.ContentHTML
	if base == "" {
		base = candidate.ContentText
	}
	if base == "" {
		base = candidate.Title
	}
	if base == "" {
		base = candidate.URL
	}
	digest, err := p.hasher.Hash([]byte(base))
	if err != nil {
		return ""
	}
	return digest
}

// truncate caps s at max bytes, backing off to the nearest rune boundary
// so a cap landing inside a multibyte rune cannot yield invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
