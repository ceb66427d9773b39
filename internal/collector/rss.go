package collector

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/mpetrov/jobpool/internal/classify"
	"github.com/mpetrov/jobpool/internal/model"
)

// typeLevels maps a feed-provided "type" field to a seniority bucket.
// When the feed gives no usable type, the keyword classifier decides.
var typeLevels = map[string]model.Level{
	"intern":       model.LevelEntry,
	"internship":   model.LevelEntry,
	"entry":        model.LevelEntry,
	"entry level":  model.LevelEntry,
	"entry-level":  model.LevelEntry,
	"graduate":     model.LevelEntry,
	"mid":          model.LevelMid,
	"mid-level":    model.LevelMid,
	"intermediate": model.LevelMid,
	"senior":       model.LevelSenior,
	"sr":           model.LevelSenior,
	"lead":         model.LevelSenior,
	"principal":    model.LevelSenior,
	"executive":    model.LevelExecutive,
	"director":     model.LevelExecutive,
	"vp":           model.LevelExecutive,
	"c-level":      model.LevelExecutive,
	"chief":        model.LevelExecutive,
}

// locationMarkers are scanned in the entry description when the feed
// exposes no structured location field.
var locationMarkers = []string{"location:", "city:", "state:"}

// RSSCollector turns an RSS/Atom feed into normalized jobs.
type RSSCollector struct {
	client *http.Client
	logger *slog.Logger
}

// NewRSS creates a collector for RSS and Atom feeds.
func NewRSS(client *http.Client, logger *slog.Logger) *RSSCollector {
	return &RSSCollector{client: client, logger: logger}
}

// Collect parses the feed at src.Locator. A malformed feed yields an
// empty result; a malformed entry is skipped without discarding the
// rest of the feed.
func (c *RSSCollector) Collect(ctx context.Context, src model.Source) []model.Job {
	parser := gofeed.NewParser()
	parser.Client = c.client

	feed, err := parser.ParseURLWithContext(src.Locator, ctx)
	if err != nil {
		c.logger.Warn("rss feed parse failed", "feed", src.Locator, "error", err)
		return nil
	}

	var jobs []model.Job
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		title := cleanText(item.Title)
		link := item.Link
		if title == "" || link == "" {
			c.logger.Debug("skipping feed entry without title or link", "feed", src.Locator)
			continue
		}

		rawDesc := item.Description
		if rawDesc == "" {
			rawDesc = item.Content
		}
		description := extractText(rawDesc)

		// Ordered extractors, first non-empty wins: a feed-provided
		// structured field beats best-effort text scraping.
		company := firstOf(
			func() string { return customField(item, "company") },
		)
		location := firstOf(
			func() string { return customField(item, "location") },
			func() string { return locationFromText(description) },
		)

		level, ok := typeLevels[strings.ToLower(strings.TrimSpace(customField(item, "type")))]
		if !ok {
			level = classify.Level(title, description)
		}

		jobs = append(jobs, model.Job{
			Title:       title,
			Company:     company,
			Location:    location,
			Description: description,
			URL:         link,
			Level:       level,
			PostedAt:    item.PublishedParsed,
		})
	}

	c.logger.Info("collected jobs from rss feed", "feed", src.Locator, "count", len(jobs))
	return jobs
}

// firstOf runs extractors in order and returns the first non-empty
// result, or "".
func firstOf(extractors ...func() string) string {
	for _, extract := range extractors {
		if v := extract(); v != "" {
			return v
		}
	}
	return ""
}

// customField returns a non-standard feed element captured by the
// parser (e.g. <company> inside an RSS item), or "".
func customField(item *gofeed.Item, name string) string {
	if v, ok := item.Custom[name]; ok {
		return cleanText(v)
	}
	return ""
}

// locationFromText scans text for a colon-terminated location marker
// and takes what follows up to the next sentence break, capped at 100
// characters. Text mentioning remote or hybrid work without a marker
// gets that as the location.
func locationFromText(text string) string {
	lower := strings.ToLower(text)
	for _, marker := range locationMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(marker):]
		for _, stop := range []string{"\n", ". ", " | "} {
			if cut, _, found := strings.Cut(rest, stop); found {
				rest = cut
			}
		}
		if v := strings.TrimSpace(rest); v != "" {
			return truncate(v, 100)
		}
	}
	if strings.Contains(lower, "remote") {
		return "Remote"
	}
	if strings.Contains(lower, "hybrid") {
		return "Hybrid"
	}
	return ""
}
